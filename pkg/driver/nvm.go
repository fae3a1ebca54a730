// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Erased is the value of a never-written NVM byte.
const Erased byte = 0xFF

// DefaultNVMSize covers the identity, radio credentials and one slot per
// register of the largest board.
const DefaultNVMSize = 0x40 + 0x40*4

// MemNVM is an NVM held in memory.
type MemNVM struct {
	data []byte
}

// NewMemNVM creates an erased in-memory NVM of size bytes.
func NewMemNVM(size int) *MemNVM {
	data := make([]byte, size)
	for i := range data {
		data[i] = Erased
	}
	return &MemNVM{data: data}
}

// ReadByteAt returns the byte at offset.
func (m *MemNVM) ReadByteAt(offset int) (byte, error) {
	if offset < 0 || offset >= len(m.data) {
		return 0, fmt.Errorf("read offset %d: %w", offset, ErrNVMAddress)
	}
	return m.data[offset], nil
}

// WriteByteAt stores value at offset.
func (m *MemNVM) WriteByteAt(offset int, value byte) error {
	if offset < 0 || offset >= len(m.data) {
		return fmt.Errorf("write offset %d: %w", offset, ErrNVMAddress)
	}
	m.data[offset] = value
	return nil
}

// Size returns the NVM size in bytes.
func (m *MemNVM) Size() int {
	return len(m.data)
}

// Bytes returns a copy of the NVM content.
func (m *MemNVM) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// nvmImage is the on-disk CBOR document of a FileNVM.
type nvmImage struct {
	Version int    `cbor:"1,keyasint"`
	Data    []byte `cbor:"2,keyasint"`
}

const nvmImageVersion = 1

// FileNVM is an NVM persisted to a CBOR file. Every write is flushed to
// disk before it returns.
type FileNVM struct {
	*MemNVM
	path string
}

// OpenFileNVM loads the NVM image at path, or creates an erased one of size
// bytes when the file does not exist yet.
func OpenFileNVM(path string, size int) (*FileNVM, error) {
	f := &FileNVM{MemNVM: NewMemNVM(size), path: path}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, f.flush()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read NVM image: %w", err)
	}

	var img nvmImage
	if err := cbor.Unmarshal(raw, &img); err != nil {
		return nil, fmt.Errorf("failed to decode NVM image %s: %w", path, err)
	}
	if img.Version != nvmImageVersion {
		return nil, fmt.Errorf("NVM image %s: unsupported version %d", path, img.Version)
	}
	copy(f.data, img.Data)
	return f, nil
}

// WriteByteAt stores value at offset and flushes the image.
func (f *FileNVM) WriteByteAt(offset int, value byte) error {
	old, err := f.MemNVM.ReadByteAt(offset)
	if err != nil {
		return err
	}
	if old == value {
		return nil
	}
	if err := f.MemNVM.WriteByteAt(offset, value); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		return fmt.Errorf("offset %d: %w", offset, errors.Join(ErrNVMWrite, err))
	}
	return nil
}

// Path returns the image file path.
func (f *FileNVM) Path() string {
	return f.path
}

func (f *FileNVM) flush() error {
	raw, err := cbor.Marshal(nvmImage{Version: nvmImageVersion, Data: f.data})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".nvm-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
