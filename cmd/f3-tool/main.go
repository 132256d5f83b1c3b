// Command f3-tool inspects CFF files without materializing any column
// data: it reads the trailing postscript and footer and prints the
// row-group, dictionary, and WASM-binary tables they describe.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/f3db/f3/checksum"
	"github.com/f3db/f3/footer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "f3-tool",
		Short: "Inspect CFF files",
	}
	root.AddCommand(newDumpCmd(), newVerifyCmd())
	return root
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the postscript and footer of a CFF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, ft, _, err := readTrailer(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("version: %d.%d\n", ps.Major, ps.Minor)
			fmt.Printf("compression: %d  checksum_type: %d\n", ps.Compression, ps.ChecksumType)
			fmt.Printf("file_checksum: %#016x  schema_checksum: %#016x\n", ps.FileChecksum, ps.SchemaChecksum)
			fmt.Printf("row groups: %d\n", len(ft.RowGroups))
			for i, rg := range ft.RowGroups {
				fmt.Printf("  [%d] rows=%d columns=%d\n", i, rg.RowCount, len(rg.Columns))
				for j, col := range rg.Columns {
					fmt.Printf("      col[%d] offset=%d size=%d enc_units=%d\n", j, col.Offset, col.Size, len(col.EncUnits))
				}
			}
			fmt.Printf("dictionaries: %d\n", len(ft.Dictionaries))
			for i, d := range ft.Dictionaries {
				fmt.Printf("  [%d] chunks=%d\n", i, len(d.Chunks))
			}
			fmt.Printf("wasm binaries: %d\n", len(ft.WasmBinaries))
			for _, wb := range ft.WasmBinaries {
				fmt.Printf("  %s offset=%d size=%d\n", wb.WasmID, wb.Offset, wb.Size)
			}
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify the file checksum against the postscript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, _, prefix, err := readTrailer(args[0])
			if err != nil {
				return err
			}
			got := checksum.Sum64(prefix)
			if got != ps.FileChecksum {
				return fmt.Errorf("checksum mismatch: postscript says %#016x, computed %#016x", ps.FileChecksum, got)
			}
			fmt.Println("ok")
			return nil
		},
	}
}

// readTrailer reads path's postscript and footer and returns the raw prefix
// bytes (everything before the footer) for checksum verification.
func readTrailer(path string) (footer.Postscript, footer.Footer, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return footer.Postscript{}, footer.Footer{}, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return footer.Postscript{}, footer.Footer{}, nil, err
	}
	if info.Size() < footer.PostscriptSize {
		return footer.Postscript{}, footer.Footer{}, nil, fmt.Errorf("file too short to hold a postscript")
	}

	psBuf := make([]byte, footer.PostscriptSize)
	if _, err := f.ReadAt(psBuf, info.Size()-footer.PostscriptSize); err != nil {
		return footer.Postscript{}, footer.Footer{}, nil, err
	}
	ps, err := footer.UnmarshalPostscript(psBuf)
	if err != nil {
		return footer.Postscript{}, footer.Footer{}, nil, err
	}

	footerOffset := info.Size() - footer.PostscriptSize - int64(ps.FooterSize)
	if footerOffset < 0 {
		return footer.Postscript{}, footer.Footer{}, nil, fmt.Errorf("footer_size %d exceeds file size", ps.FooterSize)
	}
	footerBuf := make([]byte, ps.FooterSize)
	if _, err := f.ReadAt(footerBuf, footerOffset); err != nil {
		return footer.Postscript{}, footer.Footer{}, nil, err
	}
	ft, err := footer.Deserialize(footerBuf)
	if err != nil {
		return footer.Postscript{}, footer.Footer{}, nil, err
	}

	prefix := make([]byte, footerOffset)
	if _, err := f.ReadAt(prefix, 0); err != nil {
		return footer.Postscript{}, footer.Footer{}, nil, err
	}
	return ps, ft, prefix, nil
}
