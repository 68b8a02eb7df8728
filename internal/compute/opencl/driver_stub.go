//go:build !gpu

package opencl

import "github.com/cwbudde/grayscalebench/internal/compute"

// Open returns ErrNotBuilt when GPU support is not compiled in.
func Open() (compute.Driver, error) {
	return nil, ErrNotBuilt
}

// Available reports whether this build links OpenCL.
func Available() bool { return false }
