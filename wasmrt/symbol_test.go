package wasmrt

import "testing"

func TestSymbolRoundTrip(t *testing.T) {
	names := []string{"decode_delta", "encode", "init_stateful", "decode$weird_name"}
	for _, name := range names {
		sym := encodeSymbol(name)
		for _, r := range sym {
			switch {
			case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '$', r == '_':
			default:
				t.Fatalf("symbol %q contains non-identifier-legal rune %q", sym, r)
			}
		}
		got, err := decodeSymbol(sym)
		if err != nil {
			t.Fatalf("decodeSymbol(%q): %v", sym, err)
		}
		if got != name {
			t.Fatalf("round trip: got %q, want %q", got, name)
		}
	}
}
