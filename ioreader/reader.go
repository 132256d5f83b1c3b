// Package ioreader implements the positional reader abstraction (C1):
// absolute-offset reads over local files or remote object stores, with a
// cheap-to-clone contract so multiple decoders can read concurrently.
package ioreader

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/thanos-io/objstore"

	"github.com/f3db/f3/ferrors"
)

// Reader is the positional-read contract every backend in this module
// implements. Implementations must be safe for concurrent use by multiple
// goroutines and cheap to Clone (object-store backends may cache size under
// the assumption the underlying object is immutable for the life of a read
// session).
type Reader interface {
	// ReadAt reads exactly len(p) bytes starting at offset. It returns
	// ferrors.EOF on a short read.
	ReadAt(p []byte, offset uint64) error
	// Size returns the total size of the backing object.
	Size() (uint64, error)
	// Clone returns a cheap, independently usable copy of the reader.
	Clone() Reader
}

// LocalFile adapts *os.File to Reader.
type LocalFile struct {
	f *os.File
}

// NewLocalFile wraps an already-opened file.
func NewLocalFile(f *os.File) *LocalFile {
	return &LocalFile{f: f}
}

func (l *LocalFile) ReadAt(p []byte, offset uint64) error {
	n, err := l.f.ReadAt(p, int64(offset))
	if err != nil && err != io.EOF {
		return ferrors.IOErrorf("LocalFile.ReadAt", "%s", err)
	}
	if n != len(p) {
		return ferrors.EOFf("short read: got %d want %d bytes at offset %d", n, len(p), offset)
	}
	return nil
}

func (l *LocalFile) Size() (uint64, error) {
	info, err := l.f.Stat()
	if err != nil {
		return 0, ferrors.IOErrorf("LocalFile.Size", "%s", err)
	}
	return uint64(info.Size()), nil
}

func (l *LocalFile) Clone() Reader {
	return &LocalFile{f: l.f}
}

// ObjectStoreReader adapts a thanos-io/objstore.Bucket + object key to
// Reader. It caches the object size after the first lookup under the
// assumption that the object is immutable for the lifetime of a read
// session.
type ObjectStoreReader struct {
	bucket objstore.BucketReader
	name   string

	once    sync.Once
	size    uint64
	sizeErr error
}

// NewObjectStoreReader builds a Reader backed by an objstore bucket.
func NewObjectStoreReader(bucket objstore.BucketReader, name string) *ObjectStoreReader {
	return &ObjectStoreReader{bucket: bucket, name: name}
}

func (o *ObjectStoreReader) ReadAt(p []byte, offset uint64) error {
	ctx := context.Background()
	rc, err := o.bucket.GetRange(ctx, o.name, int64(offset), int64(len(p)))
	if err != nil {
		return ferrors.IOErrorf("ObjectStoreReader.ReadAt", "%s", err)
	}
	defer rc.Close()

	n, err := io.ReadFull(rc, p)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return ferrors.IOErrorf("ObjectStoreReader.ReadAt", "%s", err)
	}
	if n != len(p) {
		return ferrors.EOFf("short read: got %d want %d bytes at offset %d", n, len(p), offset)
	}
	return nil
}

func (o *ObjectStoreReader) Size() (uint64, error) {
	o.once.Do(func() {
		attrs, err := o.bucket.Attributes(context.Background(), o.name)
		if err != nil {
			o.sizeErr = ferrors.IOErrorf("ObjectStoreReader.Size", "%s", err)
			return
		}
		o.size = uint64(attrs.Size)
	})
	return o.size, o.sizeErr
}

func (o *ObjectStoreReader) Clone() Reader {
	return &ObjectStoreReader{bucket: o.bucket, name: o.name, size: o.size, sizeErr: o.sizeErr}
}

// InMemory adapts a plain byte slice to Reader, useful for tests.
type InMemory struct {
	data []byte
}

func NewInMemory(data []byte) *InMemory {
	return &InMemory{data: data}
}

func (m *InMemory) ReadAt(p []byte, offset uint64) error {
	if offset+uint64(len(p)) > uint64(len(m.data)) {
		return ferrors.EOFf("read past end: offset=%d len=%d size=%d", offset, len(p), len(m.data))
	}
	copy(p, m.data[offset:offset+uint64(len(p))])
	return nil
}

func (m *InMemory) Size() (uint64, error) { return uint64(len(m.data)), nil }

func (m *InMemory) Clone() Reader { return &InMemory{data: m.data} }
