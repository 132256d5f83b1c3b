package footer

import (
	"bytes"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/f3db/f3/ferrors"
)

// SchemaToIPC serializes schema to Arrow's IPC stream format, writing no
// record batches: the resulting bytes carry only the schema message, the
// same payload whose checksum becomes the postscript's schema_checksum.
func SchemaToIPC(schema *arrow.Schema) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(memory.DefaultAllocator))
	if err := w.Close(); err != nil {
		return nil, ferrors.Externalf(err)
	}
	return buf.Bytes(), nil
}

// SchemaFromIPC reverses SchemaToIPC.
func SchemaFromIPC(buf []byte) (*arrow.Schema, error) {
	r, err := ipc.NewReader(bytes.NewReader(buf), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, ferrors.ParseErrorf("footer: Unable to get root as footer: %s", err)
	}
	defer r.Release()
	schema := r.Schema()
	if schema == nil {
		return nil, ferrors.ParseErrorf("footer: Unable to get root as footer: missing schema")
	}
	// Drain and release any batches the stream happens to carry so the
	// reader's resources are freed even if callers only wanted the schema.
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
	}
	return schema, nil
}
