package compute

// Opaque handles issued by a Driver. Zero is never a valid handle.
type (
	PlatformID uintptr
	DeviceID   uintptr
	ContextID  uintptr
	QueueID    uintptr
	ProgramID  uintptr
	KernelID   uintptr
	MemID      uintptr
)

// Driver is the thin host API over a compute runtime. All calls are blocking.
//
// Platform and device handles are informational and never released. Every
// other handle returned by a Create call must be passed to the matching
// Release call exactly once.
type Driver interface {
	Platforms() ([]PlatformID, error)
	PlatformInfo(p PlatformID) (name, vendor string, err error)
	// GPUDevices returns the GPU-class devices of a platform. A platform
	// without GPUs yields an empty slice and no error.
	GPUDevices(p PlatformID) ([]DeviceID, error)
	DeviceName(d DeviceID) (string, error)
	DeviceMemory(d DeviceID) (uint64, error)

	CreateContext(d DeviceID) (ContextID, error)
	ReleaseContext(c ContextID) error
	// CreateQueue creates an in-order queue without profiling.
	CreateQueue(c ContextID, d DeviceID) (QueueID, error)
	ReleaseQueue(q QueueID) error

	// CreateBufferFrom creates a read-only device buffer populated from host
	// before returning.
	CreateBufferFrom(c ContextID, host []byte) (MemID, error)
	// CreateBuffer creates a write-only device buffer of size bytes.
	CreateBuffer(c ContextID, size int) (MemID, error)
	ReleaseBuffer(m MemID) error

	CreateProgram(c ContextID, source string) (ProgramID, error)
	// BuildProgram compiles for one device with no options.
	BuildProgram(p ProgramID, d DeviceID) error
	// BuildLog returns the raw log including any trailing NUL terminator.
	BuildLog(p ProgramID, d DeviceID) ([]byte, error)
	ReleaseProgram(p ProgramID) error

	CreateKernel(p ProgramID, name string) (KernelID, error)
	SetKernelArgBuffer(k KernelID, index int, m MemID) error
	ReleaseKernel(k KernelID) error

	// EnqueueKernel enqueues a 1-D range of global work-items with a
	// driver-chosen local size and no wait list.
	EnqueueKernel(q QueueID, k KernelID, global int) error
	// ReadBuffer blocks until dst holds the first len(dst) bytes of m.
	ReadBuffer(q QueueID, m MemID, dst []byte) error
}
