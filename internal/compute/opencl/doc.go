// Package opencl implements compute.Driver on the system OpenCL 1.2 library.
//
// The cgo implementation is compiled with the "gpu" build tag and links
// -lOpenCL. Without the tag Open reports ErrNotBuilt and the application runs
// with an empty device catalog.
package opencl

import "errors"

// ErrNotBuilt indicates the binary was built without GPU support.
var ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")
