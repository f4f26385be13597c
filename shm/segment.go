// Package shm provides named shared memory segments and the data structures
// that live in them: the bounded buffer shared by a producer and a consumer
// process, the backing of a result table and of the input, and counting
// semaphores that worker processes synchronize on.
//
// A segment is a file under /dev/shm, or under the temporary directory where
// /dev/shm is not available, mapped into memory with MAP_SHARED. Processes
// that map the same name see the same memory.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"
)

// ErrSegmentTooSmall is returned when a segment cannot hold the requested
// layout.
var ErrSegmentTooSmall = errors.New("shm: segment too small")

// A Segment is a mapped shared memory segment.
type Segment struct {
	File *os.File
	Mem  []byte
	Path string
}

// Create creates, or truncates, the segment with the given name and maps size
// zeroed bytes of it.
func Create(name string, size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid segment size: %d", size)
	}
	path := SegmentPath(name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}
	if err := file.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize segment file: %w", err)
	}
	mem, err := mmapFile(file, size)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}
	return &Segment{File: file, Mem: mem, Path: path}, nil
}

// Open maps the existing segment with the given name.
func Open(name string) (*Segment, error) {
	path := SegmentPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat segment file: %w", err)
	}
	if info.Size() == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %s is empty", ErrSegmentTooSmall, path)
	}
	mem, err := mmapFile(file, int(info.Size()))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}
	return &Segment{File: file, Mem: mem, Path: path}, nil
}

// Close unmaps the segment and closes its file. The segment itself persists
// until Unlink.
func (s *Segment) Close() error {
	var err error
	if s.Mem != nil {
		err = munmap(s.Mem)
		s.Mem = nil
	}
	if s.File != nil {
		if cerr := s.File.Close(); err == nil {
			err = cerr
		}
		s.File = nil
	}
	return err
}

// Unlink removes the segment name. Mappings that already exist stay valid.
func (s *Segment) Unlink() error {
	if err := os.Remove(s.Path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.Path, err)
	}
	return nil
}

// Int32s returns the segment memory as 32-bit signed words.
func (s *Segment) Int32s() []int32 {
	return unsafe.Slice((*int32)(unsafe.Pointer(&s.Mem[0])), len(s.Mem)/4)
}

// Uint32s returns the segment memory as 32-bit unsigned words.
func (s *Segment) Uint32s() []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&s.Mem[0])), len(s.Mem)/4)
}

// SegmentPath returns the file path of the segment with the given name. On
// Linux this is the path shm_open uses for the same name.
func SegmentPath(name string) string {
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", name)
	}
	return filepath.Join(os.TempDir(), name)
}

func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}
