package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPlatformsFound is reported by Catalog.Reason when no compute platform exists.
	ErrNoPlatformsFound = errors.New("no compute platforms found")
	// ErrNoDevicesFound is reported by Catalog.Reason when platforms exist but carry no GPU.
	ErrNoDevicesFound = errors.New("no GPU devices found")
	// ErrSessionBind indicates that a context or queue could not be created.
	ErrSessionBind = errors.New("device session bind failed")
	// ErrNotBound guards GPU work on a session that holds no device.
	ErrNotBound = fmt.Errorf("%w: no device bound", ErrSessionBind)
	// ErrKernelSourceMissing indicates the kernel source file could not be read.
	ErrKernelSourceMissing = errors.New("kernel source missing")
	// ErrKernelBuild matches every *BuildError.
	ErrKernelBuild = errors.New("kernel build failed")
	// ErrKernelLink indicates the entry point is absent from the program.
	ErrKernelLink = errors.New("kernel entry point not found")
	// ErrDispatch indicates an enqueue, transfer or argument failure.
	ErrDispatch = errors.New("kernel dispatch failed")
)

// BuildError carries the compiler diagnostics of a failed build.
type BuildError struct {
	// Log is the build log as reported by the compiler, without the terminator.
	Log string
	// Status is the error returned by the build call, if any.
	Status error
}

func (e *BuildError) Error() string {
	if e.Log == "" && e.Status != nil {
		return "kernel build failed: " + e.Status.Error()
	}
	return "kernel build failed:\n" + e.Log
}

func (e *BuildError) Is(target error) bool {
	return target == ErrKernelBuild
}

func (e *BuildError) Unwrap() error {
	return e.Status
}

// Kind returns the tag of a compute error for display and transport.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoPlatformsFound):
		return "NoPlatformsFound"
	case errors.Is(err, ErrNoDevicesFound):
		return "NoDevicesFound"
	case errors.Is(err, ErrSessionBind):
		return "SessionBindFailure"
	case errors.Is(err, ErrKernelSourceMissing):
		return "KernelSourceMissing"
	case errors.Is(err, ErrKernelBuild):
		return "KernelBuildFailure"
	case errors.Is(err, ErrKernelLink):
		return "KernelLinkFailure"
	case errors.Is(err, ErrDispatch):
		return "DispatchFailure"
	default:
		return "Unknown"
	}
}
