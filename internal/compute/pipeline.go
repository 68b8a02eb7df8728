package compute

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// KernelSpec names the program source and the entry point to run. The entry
// point must take exactly two buffer parameters: input, then output.
type KernelSpec struct {
	Source     string
	EntryPoint string
}

// LoadKernelSource reads a kernel source file. It touches no device state.
func LoadKernelSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrKernelSourceMissing, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrKernelSourceMissing, path)
	}
	return string(data), nil
}

// Dispatch compiles spec against the bound device, uploads input, runs one
// work-item per element and reads back outputByteCount bytes.
//
// Program, kernel and both buffers are created per call and released on
// every return path. A build log longer than its terminator fails the
// dispatch with a *BuildError carrying the log.
func Dispatch(s *Session, spec KernelSpec, input []byte, outputByteCount, elementCount int) ([]byte, error) {
	if !s.IsBound() {
		return nil, ErrNotBound
	}
	if err := validateDispatch(spec, input, outputByteCount, elementCount); err != nil {
		return nil, err
	}

	prog, err := compile(s, spec.Source)
	if err != nil {
		return nil, err
	}
	defer prog.release()

	kernelName := spec.EntryPoint
	kid, err := s.driver.CreateKernel(prog.id, kernelName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKernelLink, kernelName, err)
	}
	k := &kernel{driver: s.driver, id: kid, name: kernelName}
	defer k.release()

	in, err := Upload(s, input)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	out, err := Allocate(s, outputByteCount)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	if err := s.driver.SetKernelArgBuffer(k.id, 0, in.id); err != nil {
		return nil, fmt.Errorf("%w: set input argument: %v", ErrDispatch, err)
	}
	if err := s.driver.SetKernelArgBuffer(k.id, 1, out.id); err != nil {
		return nil, fmt.Errorf("%w: set output argument: %v", ErrDispatch, err)
	}

	if err := s.driver.EnqueueKernel(s.queue, k.id, elementCount); err != nil {
		return nil, fmt.Errorf("%w: enqueue %s over %d items: %v", ErrDispatch, kernelName, elementCount, err)
	}

	result, err := Download(s, out, outputByteCount)
	if err != nil {
		return nil, err
	}

	slog.Debug("Kernel dispatched",
		"kernel", kernelName,
		"device", s.device.Name,
		"work_items", elementCount,
		"bytes", outputByteCount,
	)
	return result, nil
}

func validateDispatch(spec KernelSpec, input []byte, outputByteCount, elementCount int) error {
	switch {
	case strings.TrimSpace(spec.Source) == "":
		return fmt.Errorf("%w: empty kernel source", ErrKernelSourceMissing)
	case spec.EntryPoint == "":
		return fmt.Errorf("%w: empty entry point name", ErrKernelLink)
	case len(input) == 0:
		return fmt.Errorf("%w: empty input", ErrDispatch)
	case outputByteCount <= 0:
		return fmt.Errorf("%w: invalid output size %d", ErrDispatch, outputByteCount)
	case elementCount <= 0:
		return fmt.Errorf("%w: invalid work size %d", ErrDispatch, elementCount)
	case elementCount*BytesPerPixel > len(input):
		return fmt.Errorf("%w: %d work items exceed input of %d bytes", ErrDispatch, elementCount, len(input))
	case elementCount*BytesPerPixel > outputByteCount:
		return fmt.Errorf("%w: %d work items exceed output of %d bytes", ErrDispatch, elementCount, outputByteCount)
	}
	return nil
}

// compile creates and builds a program. The returned program is owned by the
// caller; on error nothing is left allocated.
func compile(s *Session, source string) (*program, error) {
	pid, err := s.driver.CreateProgram(s.context, source)
	if err != nil {
		return nil, &BuildError{Status: err}
	}
	prog := &program{driver: s.driver, id: pid}

	status := s.driver.BuildProgram(pid, s.device.id)

	raw, logErr := s.driver.BuildLog(pid, s.device.id)
	if logErr != nil {
		slog.Warn("Failed to fetch build log", "device", s.device.Name, "error", logErr)
		raw = nil
	}

	if len(raw) > 1 {
		prog.release()
		buildErr := &BuildError{Log: string(bytes.TrimRight(raw, "\x00")), Status: status}
		slog.Error("Kernel build log", "device", s.device.Name, "log", buildErr.Log)
		return nil, buildErr
	}
	if status != nil {
		prog.release()
		return nil, &BuildError{Status: status}
	}
	return prog, nil
}

// IsBuildError reports whether err is a build failure and returns its log.
func IsBuildError(err error) (string, bool) {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Log, true
	}
	return "", false
}
