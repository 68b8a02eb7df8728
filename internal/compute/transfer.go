package compute

import "fmt"

// Upload creates a read-only device buffer populated from host. The copy is
// complete when Upload returns, so host may be reused immediately.
func Upload(s *Session, host []byte) (*Buffer, error) {
	if !s.IsBound() {
		return nil, ErrNotBound
	}
	if len(host) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrDispatch)
	}

	id, err := s.driver.CreateBufferFrom(s.context, host)
	if err != nil {
		return nil, fmt.Errorf("%w: upload %d bytes: %v", ErrDispatch, len(host), err)
	}
	return &Buffer{driver: s.driver, id: id, size: len(host)}, nil
}

// Allocate creates a write-only device buffer of size bytes.
func Allocate(s *Session, size int) (*Buffer, error) {
	if !s.IsBound() {
		return nil, ErrNotBound
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid buffer size %d", ErrDispatch, size)
	}

	id, err := s.driver.CreateBuffer(s.context, size)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate %d bytes: %v", ErrDispatch, size, err)
	}
	return &Buffer{driver: s.driver, id: id, size: size}, nil
}

// Download performs a blocking read of the first n bytes of b into a new
// host slice.
func Download(s *Session, b *Buffer, n int) ([]byte, error) {
	if !s.IsBound() {
		return nil, ErrNotBound
	}
	if b == nil || b.id == 0 {
		return nil, fmt.Errorf("%w: download from released buffer", ErrDispatch)
	}
	if n <= 0 || n > b.size {
		return nil, fmt.Errorf("%w: download %d bytes from %d byte buffer", ErrDispatch, n, b.size)
	}

	out := make([]byte, n)
	if err := s.driver.ReadBuffer(s.queue, b.id, out); err != nil {
		return nil, fmt.Errorf("%w: read back %d bytes: %v", ErrDispatch, n, err)
	}
	return out, nil
}
