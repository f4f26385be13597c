//go:build !unix

package shm

import (
	"errors"
	"os"
)

func mmapFile(*os.File, int) ([]byte, error) {
	return nil, errors.ErrUnsupported
}

func munmap([]byte) error {
	return errors.ErrUnsupported
}
