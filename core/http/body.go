package http

import (
	"os"

	"golang.org/x/sys/unix"
)

// DefaultSpillThreshold is the body size above which the store moves from
// memory to a temporary file.
const DefaultSpillThreshold = 256 * 1024

type bodyKind int

const (
	bodyMemory bodyKind = iota
	bodyFile
)

// bodyStore holds a request body either fully in memory or spilled to a
// bounded temporary file. Exactly one backing is live at a time; readers go
// through View and never learn which one it is. The file backing is mapped
// read-only on first view, matching the contiguous-view contract of the
// in-memory form.
type bodyStore struct {
	kind bodyKind
	buf  []byte
	file *os.File
	mmap []byte
	size int64
}

func (b *bodyStore) len() int64 {
	return b.size
}

// reserve grows the in-memory buffer capacity. Purely a hint; a store that
// already spilled ignores it.
func (b *bodyStore) reserve(n int64) {
	if b.kind != bodyMemory || int64(cap(b.buf)) >= n {
		return
	}
	grown := make([]byte, len(b.buf), n)
	copy(grown, b.buf)
	b.buf = grown
}

// append accumulates body bytes, spilling to a temporary file once the
// total exceeds threshold. A threshold <= 0 means DefaultSpillThreshold.
func (b *bodyStore) append(data []byte, threshold int64) error {
	if len(data) == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultSpillThreshold
	}
	if b.kind == bodyMemory && b.size+int64(len(data)) > threshold {
		if err := b.spill(); err != nil {
			return err
		}
	}
	if b.kind == bodyFile {
		b.dropView()
		if _, err := b.file.Write(data); err != nil {
			return err
		}
	} else {
		b.buf = append(b.buf, data...)
	}
	b.size += int64(len(data))
	return nil
}

// spill moves the accumulated in-memory bytes to a fresh temporary file.
func (b *bodyStore) spill() error {
	f, err := os.CreateTemp("", "reqbody-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(b.buf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	b.file = f
	b.kind = bodyFile
	b.buf = nil
	return nil
}

// view returns the whole body as one contiguous byte slice. For a spilled
// body the file is mapped on demand; the mapping stays valid until the next
// append or reset.
func (b *bodyStore) view() []byte {
	if b.kind == bodyMemory {
		return b.buf
	}
	if b.mmap != nil {
		return b.mmap
	}
	if b.size == 0 {
		return nil
	}
	m, err := unix.Mmap(int(b.file.Fd()), 0, int(b.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// Mapping failure degrades to a plain read so callers still get
		// the contiguous view.
		data := make([]byte, b.size)
		if _, rerr := b.file.ReadAt(data, 0); rerr != nil {
			return nil
		}
		return data
	}
	b.mmap = m
	return b.mmap
}

func (b *bodyStore) dropView() {
	if b.mmap != nil {
		unix.Munmap(b.mmap)
		b.mmap = nil
	}
}

// set replaces the stored body with data, dropping any spill file. Used by
// decompression and the explicit body setter.
func (b *bodyStore) set(data []byte) {
	b.reset()
	b.buf = append(b.buf, data...)
	b.size = int64(len(b.buf))
}

// reset returns the store to an empty in-memory state, releasing the spill
// file if one exists.
func (b *bodyStore) reset() {
	b.dropView()
	if b.file != nil {
		name := b.file.Name()
		b.file.Close()
		os.Remove(name)
		b.file = nil
	}
	b.kind = bodyMemory
	b.buf = b.buf[:0]
	b.size = 0
}
