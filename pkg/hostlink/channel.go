// Package hostlink abstracts the virtio serial host channel: a
// byte-oriented port the daemon opens once an active, resolution-bearing
// session agent exists, and closes otherwise (spec.md §4.5's coupler).
// The low-level port itself — accept/read/write over the virtio character
// device — is an external collaborator per spec.md §2; this package
// supplies the one concrete implementation vdbridged ships with.
package hostlink

import (
	"fmt"
	"io"
	"os"
)

// Channel is the host-channel transport: a length-framed byte stream
// (pkg/wire.ReadFrame/WriteFrame operate directly on it) that can be
// closed and later reopened.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
}

// FileChannel opens the virtio-serial character device as a plain file.
// On Linux guests this path is typically something under
// /dev/virtio-ports/, created by the virtio_console driver.
type FileChannel struct {
	path string
	f    *os.File
}

// NewFileChannel returns a Channel backed by the virtio port at path. The
// device is opened immediately; Close releases it.
func NewFileChannel(path string) (*FileChannel, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hostlink: open %s: %w", path, err)
	}
	return &FileChannel{path: path, f: f}, nil
}

func (c *FileChannel) Read(p []byte) (int, error) {
	return c.f.Read(p)
}

func (c *FileChannel) Write(p []byte) (int, error) {
	return c.f.Write(p)
}

func (c *FileChannel) Close() error {
	return c.f.Close()
}

func (c *FileChannel) Path() string {
	return c.path
}
