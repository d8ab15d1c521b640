// Package batch implements the Sidetree batch file: a deterministic,
// self-delimiting container for an ordered group of raw operation payloads.
package batch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedBatchFile is returned by FromBuffer when bytes do not decode
// as a batch file.
var ErrMalformedBatchFile = errors.New("batch: malformed batch file")

// ErrIndexOutOfRange is returned by GetOperationBuffer for an out-of-range
// index.
var ErrIndexOutOfRange = errors.New("batch: index out of range")

// File is an ordered, finite sequence of raw operation payloads.
//
// Wire format: a 4-byte big-endian operation count, followed by that many
// (4-byte big-endian length, payload) pairs. The format is deterministic —
// equal input sequences always serialize to byte-equal output — so CAS
// addressing over ToBuffer's result is stable.
type File struct {
	operations [][]byte
}

// FromOperations builds a File from an ordered sequence of raw operation
// payloads. The slice is copied so later mutation by the caller cannot
// affect the File.
func FromOperations(ops [][]byte) *File {
	cp := make([][]byte, len(ops))
	for i, op := range ops {
		cp[i] = append([]byte{}, op...)
	}
	return &File{operations: cp}
}

// FromBuffer decodes a batch file previously produced by ToBuffer.
func FromBuffer(buf []byte) (*File, error) {
	r := bytes.NewReader(buf)

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading operation count: %v", ErrMalformedBatchFile, err)
	}

	ops := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("%w: reading length of operation %d: %v", ErrMalformedBatchFile, i, err)
		}
		payload := make([]byte, length)
		if _, err := readFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: reading payload of operation %d: %v", ErrMalformedBatchFile, i, err)
		}
		ops = append(ops, payload)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBatchFile, r.Len())
	}

	return &File{operations: ops}, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := r.Read(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, errors.New("short read")
	}
	return n, nil
}

// ToBuffer serializes f deterministically.
func (f *File) ToBuffer() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(f.operations)))
	for _, op := range f.operations {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(op)))
		buf.Write(op)
	}
	return buf.Bytes()
}

// Len returns the number of operations in the batch.
func (f *File) Len() int {
	return len(f.operations)
}

// GetOperationBuffer returns the raw payload at index i.
func (f *File) GetOperationBuffer(i int) ([]byte, error) {
	if i < 0 || i >= len(f.operations) {
		return nil, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, len(f.operations))
	}
	return f.operations[i], nil
}

// Operations returns the full ordered slice of payloads, for callers (such
// as the Merkle commitment) that need to iterate all of them.
func (f *File) Operations() [][]byte {
	return f.operations
}
