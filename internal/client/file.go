package client

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// File is a user-selected file: a name and a way to read its bytes.
type File interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type pathFile struct {
	path string
}

func PathFile(path string) File {
	return pathFile{path: path}
}

func (f pathFile) Name() string {
	return filepath.Base(f.path)
}

func (f pathFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

type bytesFile struct {
	name string
	data []byte
}

func BytesFile(name string, data []byte) File {
	return bytesFile{name: name, data: data}
}

func (f bytesFile) Name() string {
	return f.name
}

func (f bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
