package shm

import "fmt"

// CreateData creates the segment with the given name holding a copy of data,
// and returns the copy.
func CreateData(name string, data []uint32) ([]uint32, *Segment, error) {
	seg, err := Create(name, len(data)*4)
	if err != nil {
		return nil, nil, err
	}
	words := seg.Uint32s()
	copy(words, data)
	return words, seg, nil
}

// OpenData maps the data segment another process created under the given
// name.
func OpenData(name string) ([]uint32, *Segment, error) {
	seg, err := Open(name)
	if err != nil {
		return nil, nil, err
	}
	if len(seg.Mem)%4 != 0 {
		seg.Close()
		return nil, nil, fmt.Errorf("invalid data segment size: %d bytes", len(seg.Mem))
	}
	return seg.Uint32s(), seg, nil
}
