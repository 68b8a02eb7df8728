package compute

import "log/slog"

// Buffer is a device buffer owned by the caller until Release.
type Buffer struct {
	driver Driver
	id     MemID
	size   int
}

// Size returns the buffer length in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Release frees the device memory. Further calls are no-ops.
func (b *Buffer) Release() {
	if b == nil || b.id == 0 {
		return
	}
	if err := b.driver.ReleaseBuffer(b.id); err != nil {
		slog.Error("Failed to release buffer", "bytes", b.size, "error", err)
	}
	b.id = 0
}

type program struct {
	driver Driver
	id     ProgramID
}

func (p *program) release() {
	if p.id == 0 {
		return
	}
	if err := p.driver.ReleaseProgram(p.id); err != nil {
		slog.Error("Failed to release program", "error", err)
	}
	p.id = 0
}

type kernel struct {
	driver Driver
	id     KernelID
	name   string
}

func (k *kernel) release() {
	if k.id == 0 {
		return
	}
	if err := k.driver.ReleaseKernel(k.id); err != nil {
		slog.Error("Failed to release kernel", "kernel", k.name, "error", err)
	}
	k.id = 0
}
