package compute

import (
	"fmt"
	"log/slog"
)

// Session owns one context and one in-order queue bound to a single device.
// Context and queue are either both live or both absent.
//
// A Session is not safe for concurrent use. Callers that dispatch from
// several goroutines must serialize Bind and Unbind against Dispatch.
type Session struct {
	driver  Driver
	device  Device
	context ContextID
	queue   QueueID
	bound   bool
}

// NewSession returns an unbound session on driver.
func NewSession(driver Driver) *Session {
	return &Session{driver: driver}
}

// Bind makes device the active device. A previous binding to another device
// is released first, queue before context. Binding the already active device
// is a no-op. On failure the session is left unbound and the error wraps
// ErrSessionBind.
func (s *Session) Bind(device Device) error {
	if s.driver == nil {
		return fmt.Errorf("%w: no compute driver", ErrSessionBind)
	}
	if s.bound && s.device.id == device.id {
		return nil
	}

	s.Unbind()

	ctx, err := s.driver.CreateContext(device.id)
	if err != nil {
		return fmt.Errorf("%w: create context on %s: %v", ErrSessionBind, device.Name, err)
	}

	queue, err := s.driver.CreateQueue(ctx, device.id)
	if err != nil {
		if rerr := s.driver.ReleaseContext(ctx); rerr != nil {
			slog.Error("Failed to release context", "device", device.Name, "error", rerr)
		}
		return fmt.Errorf("%w: create queue on %s: %v", ErrSessionBind, device.Name, err)
	}

	s.device = device
	s.context = ctx
	s.queue = queue
	s.bound = true

	slog.Info("Device bound", "device", device.Name, "platform", device.Platform, "memory_bytes", device.MemoryBytes)
	return nil
}

// Unbind releases the queue and then the context. It is a no-op when the
// session is unbound.
func (s *Session) Unbind() {
	if !s.bound {
		return
	}

	if err := s.driver.ReleaseQueue(s.queue); err != nil {
		slog.Error("Failed to release queue", "device", s.device.Name, "error", err)
	}
	if err := s.driver.ReleaseContext(s.context); err != nil {
		slog.Error("Failed to release context", "device", s.device.Name, "error", err)
	}

	slog.Debug("Device unbound", "device", s.device.Name)

	s.device = Device{}
	s.context = 0
	s.queue = 0
	s.bound = false
}

// IsBound reports whether a context and queue are live.
func (s *Session) IsBound() bool {
	return s.bound
}

// Device returns the bound device.
func (s *Session) Device() (Device, bool) {
	return s.device, s.bound
}
