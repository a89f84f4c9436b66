//go:build !unix

package mmapview

import (
	"fmt"
	"os"
)

// OpenFile reads path fully into memory and returns a View over it. Off the
// unix family there is no portable read-only mmap in golang.org/x/sys, so
// this falls back to a single bulk read; every other guarantee (bounds
// checking, buffer lifetime tied to the View) still holds.
func OpenFile(path string) (*View, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("mmapview: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("mmapview: %s is empty", path)
	}
	return New(data), func() error { return nil }, nil
}
