// Package computetest provides an in-memory compute.Driver that counts live
// resources, injects failures and runs kernels written in Go.
package computetest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cwbudde/grayscalebench/internal/compute"
)

// KernelFunc runs one work-item. in and out are the buffers bound to
// arguments 0 and 1.
type KernelFunc func(gid int, in, out []byte)

// Device describes a fake GPU.
type Device struct {
	Name        string
	MemoryBytes uint64
}

// Platform describes a fake platform and its GPUs.
type Platform struct {
	Name    string
	Vendor  string
	Devices []Device
	// DevicesErr is returned by GPUDevices for this platform.
	DevicesErr error
}

// Resource kinds tracked by the driver.
const (
	KindContext = "context"
	KindQueue   = "queue"
	KindBuffer  = "buffer"
	KindProgram = "program"
	KindKernel  = "kernel"
)

// Operation names accepted by FailOn.
const (
	OpPlatforms     = "Platforms"
	OpCreateContext = "CreateContext"
	OpCreateQueue   = "CreateQueue"
	OpCreateBuffer  = "CreateBuffer"
	OpCreateProgram = "CreateProgram"
	OpBuildLog      = "BuildLog"
	OpSetArg        = "SetKernelArgBuffer"
	OpEnqueue       = "EnqueueKernel"
	OpReadBuffer    = "ReadBuffer"
)

var kernelDecl = regexp.MustCompile(`__kernel\s+void\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

type resource struct {
	kind   string
	parent uintptr
	device int
	data   []byte
	source string
	built  bool
	names  []string
	fn     KernelFunc
	args   [2]uintptr
}

// Driver is a compute.Driver backed by Go memory.
type Driver struct {
	mu        sync.Mutex
	platforms []Platform
	devices   []Device
	byPlat    [][]int

	kernels map[string]KernelFunc
	fail    map[string]error
	// SuccessLog is returned as the build log of a clean build.
	SuccessLog []byte

	next      uintptr
	live      map[uintptr]*resource
	created   map[string]int
	released  map[string]int
	calls     map[string]int
	violation []string
}

// New returns a driver exposing platforms. ToGrayscale and Identity kernels
// are registered.
func New(platforms ...Platform) *Driver {
	d := &Driver{
		platforms:  platforms,
		kernels:    map[string]KernelFunc{},
		fail:       map[string]error{},
		SuccessLog: []byte{0},
		next:       1,
		live:       map[uintptr]*resource{},
		created:    map[string]int{},
		released:   map[string]int{},
		calls:      map[string]int{},
	}
	for _, p := range platforms {
		idx := make([]int, 0, len(p.Devices))
		for _, dev := range p.Devices {
			idx = append(idx, len(d.devices))
			d.devices = append(d.devices, dev)
		}
		d.byPlat = append(d.byPlat, idx)
	}
	d.RegisterKernel("ToGrayscale", GrayscaleKernel)
	d.RegisterKernel("Identity", IdentityKernel)
	return d
}

// SingleGPU returns a driver with one platform holding one GPU.
func SingleGPU() *Driver {
	return New(Platform{
		Name:    "Fake OpenCL",
		Vendor:  "Fake Vendor",
		Devices: []Device{{Name: "Fake GPU", MemoryBytes: 4 << 30}},
	})
}

// RegisterKernel makes name runnable when a program declares it.
func (d *Driver) RegisterKernel(name string, fn KernelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[name] = fn
}

// FailOn makes op return err until cleared with a nil err.
func (d *Driver) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, op)
		return
	}
	d.fail[op] = err
}

// Live returns the number of unreleased resources of kind.
func (d *Driver) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.live {
		if r.kind == kind {
			n++
		}
	}
	return n
}

// LiveTotal returns the number of unreleased resources of any kind.
func (d *Driver) LiveTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Created returns how many resources of kind were created.
func (d *Driver) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Released returns how many resources of kind were released.
func (d *Driver) Released(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released[kind]
}

// Calls returns how many times the named driver method ran.
func (d *Driver) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// TotalCalls returns the number of driver calls of any kind.
func (d *Driver) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

// Violations lists lifetime rule breaks such as double releases or a context
// released before its queue.
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violation...)
}

func (d *Driver) enter(method string) error {
	d.calls[method]++
	return d.fail[method]
}

func (d *Driver) add(r *resource) uintptr {
	h := d.next
	d.next++
	d.live[h] = r
	d.created[r.kind]++
	return h
}

func (d *Driver) get(h uintptr, kind string) (*resource, error) {
	r, ok := d.live[h]
	if !ok || r.kind != kind {
		return nil, fmt.Errorf("invalid %s handle %d", kind, h)
	}
	return r, nil
}

func (d *Driver) remove(h uintptr, kind string) error {
	r, ok := d.live[h]
	if !ok || r.kind != kind {
		d.violation = append(d.violation, fmt.Sprintf("release of dead %s %d", kind, h))
		return fmt.Errorf("invalid %s handle %d", kind, h)
	}
	for _, other := range d.live {
		if other.parent == h && kind == KindContext && other.kind == KindQueue {
			d.violation = append(d.violation, fmt.Sprintf("context %d released before its queue", h))
		}
	}
	delete(d.live, h)
	d.released[r.kind]++
	return nil
}

func (d *Driver) device(id compute.DeviceID) (int, error) {
	i := int(id) - 1
	if i < 0 || i >= len(d.devices) {
		return 0, fmt.Errorf("invalid device %d", id)
	}
	return i, nil
}

func (d *Driver) Platforms() ([]compute.PlatformID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpPlatforms); err != nil {
		return nil, err
	}
	out := make([]compute.PlatformID, len(d.platforms))
	for i := range d.platforms {
		out[i] = compute.PlatformID(i + 1)
	}
	return out, nil
}

func (d *Driver) PlatformInfo(p compute.PlatformID) (string, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("PlatformInfo")
	i := int(p) - 1
	if i < 0 || i >= len(d.platforms) {
		return "", "", fmt.Errorf("invalid platform %d", p)
	}
	return d.platforms[i].Name, d.platforms[i].Vendor, nil
}

func (d *Driver) GPUDevices(p compute.PlatformID) ([]compute.DeviceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("GPUDevices")
	i := int(p) - 1
	if i < 0 || i >= len(d.platforms) {
		return nil, fmt.Errorf("invalid platform %d", p)
	}
	if err := d.platforms[i].DevicesErr; err != nil {
		return nil, err
	}
	out := make([]compute.DeviceID, 0, len(d.byPlat[i]))
	for _, idx := range d.byPlat[i] {
		out = append(out, compute.DeviceID(idx+1))
	}
	return out, nil
}

func (d *Driver) DeviceName(id compute.DeviceID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("DeviceName")
	i, err := d.device(id)
	if err != nil {
		return "", err
	}
	return d.devices[i].Name, nil
}

func (d *Driver) DeviceMemory(id compute.DeviceID) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("DeviceMemory")
	i, err := d.device(id)
	if err != nil {
		return 0, err
	}
	return d.devices[i].MemoryBytes, nil
}

func (d *Driver) CreateContext(id compute.DeviceID) (compute.ContextID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCreateContext); err != nil {
		return 0, err
	}
	i, err := d.device(id)
	if err != nil {
		return 0, err
	}
	return compute.ContextID(d.add(&resource{kind: KindContext, device: i})), nil
}

func (d *Driver) ReleaseContext(c compute.ContextID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("ReleaseContext")
	return d.remove(uintptr(c), KindContext)
}

func (d *Driver) CreateQueue(c compute.ContextID, id compute.DeviceID) (compute.QueueID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCreateQueue); err != nil {
		return 0, err
	}
	ctx, err := d.get(uintptr(c), KindContext)
	if err != nil {
		return 0, err
	}
	i, err := d.device(id)
	if err != nil {
		return 0, err
	}
	if ctx.device != i {
		return 0, errors.New("device not in context")
	}
	return compute.QueueID(d.add(&resource{kind: KindQueue, parent: uintptr(c), device: i})), nil
}

func (d *Driver) ReleaseQueue(q compute.QueueID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("ReleaseQueue")
	return d.remove(uintptr(q), KindQueue)
}

func (d *Driver) CreateBufferFrom(c compute.ContextID, host []byte) (compute.MemID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCreateBuffer); err != nil {
		return 0, err
	}
	if _, err := d.get(uintptr(c), KindContext); err != nil {
		return 0, err
	}
	data := make([]byte, len(host))
	copy(data, host)
	return compute.MemID(d.add(&resource{kind: KindBuffer, parent: uintptr(c), data: data})), nil
}

func (d *Driver) CreateBuffer(c compute.ContextID, size int) (compute.MemID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCreateBuffer); err != nil {
		return 0, err
	}
	if _, err := d.get(uintptr(c), KindContext); err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, errors.New("invalid buffer size")
	}
	return compute.MemID(d.add(&resource{kind: KindBuffer, parent: uintptr(c), data: make([]byte, size)})), nil
}

func (d *Driver) ReleaseBuffer(m compute.MemID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("ReleaseBuffer")
	return d.remove(uintptr(m), KindBuffer)
}

func (d *Driver) CreateProgram(c compute.ContextID, source string) (compute.ProgramID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCreateProgram); err != nil {
		return 0, err
	}
	if _, err := d.get(uintptr(c), KindContext); err != nil {
		return 0, err
	}
	return compute.ProgramID(d.add(&resource{kind: KindProgram, parent: uintptr(c), source: source})), nil
}

func (d *Driver) BuildProgram(p compute.ProgramID, _ compute.DeviceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("BuildProgram")
	prog, err := d.get(uintptr(p), KindProgram)
	if err != nil {
		return err
	}
	if diag := diagnose(prog.source); diag != "" {
		return errors.New("CL_BUILD_PROGRAM_FAILURE")
	}
	for _, m := range kernelDecl.FindAllStringSubmatch(prog.source, -1) {
		prog.names = append(prog.names, m[1])
	}
	prog.built = true
	return nil
}

func (d *Driver) BuildLog(p compute.ProgramID, _ compute.DeviceID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpBuildLog); err != nil {
		return nil, err
	}
	prog, err := d.get(uintptr(p), KindProgram)
	if err != nil {
		return nil, err
	}
	if diag := diagnose(prog.source); diag != "" {
		return append([]byte(diag), 0), nil
	}
	return append([]byte(nil), d.SuccessLog...), nil
}

func (d *Driver) ReleaseProgram(p compute.ProgramID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("ReleaseProgram")
	return d.remove(uintptr(p), KindProgram)
}

func (d *Driver) CreateKernel(p compute.ProgramID, name string) (compute.KernelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("CreateKernel")
	prog, err := d.get(uintptr(p), KindProgram)
	if err != nil {
		return 0, err
	}
	if !prog.built {
		return 0, errors.New("CL_INVALID_PROGRAM_EXECUTABLE")
	}
	declared := false
	for _, n := range prog.names {
		if n == name {
			declared = true
			break
		}
	}
	fn, registered := d.kernels[name]
	if !declared || !registered {
		return 0, errors.New("CL_INVALID_KERNEL_NAME")
	}
	return compute.KernelID(d.add(&resource{kind: KindKernel, parent: uintptr(p), fn: fn})), nil
}

func (d *Driver) SetKernelArgBuffer(k compute.KernelID, index int, m compute.MemID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetArg); err != nil {
		return err
	}
	kr, err := d.get(uintptr(k), KindKernel)
	if err != nil {
		return err
	}
	if index < 0 || index > 1 {
		return errors.New("CL_INVALID_ARG_INDEX")
	}
	if _, err := d.get(uintptr(m), KindBuffer); err != nil {
		return err
	}
	kr.args[index] = uintptr(m)
	return nil
}

func (d *Driver) ReleaseKernel(k compute.KernelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enter("ReleaseKernel")
	return d.remove(uintptr(k), KindKernel)
}

func (d *Driver) EnqueueKernel(q compute.QueueID, k compute.KernelID, global int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpEnqueue); err != nil {
		return err
	}
	if _, err := d.get(uintptr(q), KindQueue); err != nil {
		return err
	}
	kr, err := d.get(uintptr(k), KindKernel)
	if err != nil {
		return err
	}
	in, err := d.get(kr.args[0], KindBuffer)
	if err != nil {
		return errors.New("CL_INVALID_KERNEL_ARGS")
	}
	out, err := d.get(kr.args[1], KindBuffer)
	if err != nil {
		return errors.New("CL_INVALID_KERNEL_ARGS")
	}
	if need := global * compute.BytesPerPixel; need > len(in.data) || need > len(out.data) {
		d.violation = append(d.violation, fmt.Sprintf("%d work items overrun buffers of %d and %d bytes", global, len(in.data), len(out.data)))
	}
	for gid := 0; gid < global; gid++ {
		kr.fn(gid, in.data, out.data)
	}
	return nil
}

func (d *Driver) ReadBuffer(q compute.QueueID, m compute.MemID, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpReadBuffer); err != nil {
		return err
	}
	if _, err := d.get(uintptr(q), KindQueue); err != nil {
		return err
	}
	buf, err := d.get(uintptr(m), KindBuffer)
	if err != nil {
		return err
	}
	if len(dst) > len(buf.data) {
		return errors.New("CL_INVALID_VALUE")
	}
	copy(dst, buf.data)
	return nil
}

// diagnose returns a compiler-style message for sources the fake compiler
// rejects, or "" when the source is acceptable.
func diagnose(source string) string {
	switch {
	case strings.Contains(source, "#error"):
		return "<source>:1:2: error: #error directive"
	case !kernelDecl.MatchString(source):
		return "<source>: error: no __kernel function declared"
	case strings.Count(source, "{") != strings.Count(source, "}"):
		return "<source>: error: expected '}'"
	case strings.Count(source, "(") != strings.Count(source, ")"):
		return "<source>: error: expected ')'"
	}
	return ""
}

var _ compute.Driver = (*Driver)(nil)
