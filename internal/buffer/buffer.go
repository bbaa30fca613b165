/*
NAME
  buffer.go

DESCRIPTION
  buffer.go provides sized read/write access over a growable byte buffer
  with position tracking, used as the serialization scratch space for
  frame and brick payloads before and after range coding.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package buffer provides a growable byte buffer reader and writer with
// explicit position tracking, mirroring the SPLV buffer IO contract:
// reads fail rather than silently truncate, and writes grow by doubling.
package buffer

import (
	"github.com/pkg/errors"

	"github.com/spatialstudio/splv/splverrors"
)

const defaultInitialLen = 1024

// Reader reads sized chunks from a fixed byte slice, failing rather than
// overrunning the end of the buffer.
type Reader struct {
	buf     []byte
	readPos int
}

// NewReader returns a Reader over buf. buf is not copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Pos returns the current read position.
func (r *Reader) Pos() int { return r.readPos }

// Read reads and returns the next n bytes, advancing the read position.
// The returned slice aliases the reader's underlying buffer and must not
// be retained past the next call that mutates the reader's source.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 || r.readPos+n > len(r.buf) {
		return nil, errors.Wrapf(splverrors.ErrFileRead, "read past end of buffer: pos %d, len %d, want %d", r.readPos, len(r.buf), n)
	}

	b := r.buf[r.readPos : r.readPos+n]
	r.readPos += n
	return b, nil
}

// ReadByte reads a single byte, advancing the read position.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Seek sets the read position. pos must be strictly less than the
// buffer length.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos >= len(r.buf) {
		return errors.Wrapf(splverrors.ErrFileRead, "seek past end of buffer: pos %d, len %d", pos, len(r.buf))
	}

	r.readPos = pos
	return nil
}

// Writer writes to a growable byte buffer, doubling capacity as needed.
type Writer struct {
	buf     []byte
	writePos int
}

// NewWriter returns a Writer with the given initial capacity. A
// nonpositive initialLen uses a small default.
func NewWriter(initialLen int) *Writer {
	if initialLen <= 0 {
		initialLen = defaultInitialLen
	}
	return &Writer{buf: make([]byte, initialLen)}
}

// Bytes returns the written portion of the buffer. The returned slice
// aliases the writer's internal buffer.
func (w *Writer) Bytes() []byte { return w.buf[:w.writePos] }

// Pos returns the current write position (i.e. the number of bytes
// written since the last Reset).
func (w *Writer) Pos() int { return w.writePos }

// Write appends p to the buffer, growing the underlying allocation by
// doubling until it fits.
func (w *Writer) Write(p []byte) error {
	w.grow(len(p))
	copy(w.buf[w.writePos:], p)
	w.writePos += len(p)
	return nil
}

// Put appends a single byte, the fast path for per-byte writes.
func (w *Writer) Put(b byte) error {
	w.grow(1)
	w.buf[w.writePos] = b
	w.writePos++
	return nil
}

// PutAt overwrites len(p) bytes starting at pos without moving the write
// position, used to back-patch a reserved header slot.
func (w *Writer) PutAt(pos int, p []byte) error {
	if pos < 0 || pos+len(p) > len(w.buf) {
		return errors.Wrap(splverrors.ErrInternal, "PutAt out of bounds")
	}
	copy(w.buf[pos:], p)
	return nil
}

// Reset zeros the write position without deallocating the underlying
// buffer, so scratch writers can be reused across frames.
func (w *Writer) Reset() {
	w.writePos = 0
}

func (w *Writer) grow(n int) {
	need := w.writePos + n
	if need <= len(w.buf) {
		return
	}

	newLen := len(w.buf)
	if newLen == 0 {
		newLen = defaultInitialLen
	}
	for need > newLen {
		newLen *= 2
	}

	grown := make([]byte, newLen)
	copy(grown, w.buf[:w.writePos])
	w.buf = grown
}
