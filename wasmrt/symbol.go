package wasmrt

import "encoding/base64"

// symbolAlphabet mirrors the custom base64 alphabet used to turn arbitrary
// UTF-8 function names into identifier-legal WASM export symbols: standard
// base64's '+' and '/' are not valid in a WASM export name, so '$' and '_'
// stand in for them.
const symbolAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789$_"

var symbolEncoding = base64.NewEncoding(symbolAlphabet).WithPadding(base64.NoPadding)

// encodeSymbol turns a user-facing function name (e.g. "decode_delta") into
// the export symbol a WASM module author must use for it.
func encodeSymbol(name string) string {
	return symbolEncoding.EncodeToString([]byte(name))
}

// decodeSymbol recovers the user-facing function name from a module export.
func decodeSymbol(export string) (string, error) {
	raw, err := symbolEncoding.DecodeString(export)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
