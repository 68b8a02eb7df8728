//go:build gpu

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>

static const char* gsb_cl_error_string(cl_int status) {
	switch (status) {
	case CL_SUCCESS: return "CL_SUCCESS";
	case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
	case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
	case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
	case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
	case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
	case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
	case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
	case CL_MAP_FAILURE: return "CL_MAP_FAILURE";
	case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
	case CL_INVALID_DEVICE_TYPE: return "CL_INVALID_DEVICE_TYPE";
	case CL_INVALID_PLATFORM: return "CL_INVALID_PLATFORM";
	case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
	case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
	case CL_INVALID_QUEUE_PROPERTIES: return "CL_INVALID_QUEUE_PROPERTIES";
	case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
	case CL_INVALID_HOST_PTR: return "CL_INVALID_HOST_PTR";
	case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
	case CL_INVALID_BUILD_OPTIONS: return "CL_INVALID_BUILD_OPTIONS";
	case CL_INVALID_PROGRAM: return "CL_INVALID_PROGRAM";
	case CL_INVALID_PROGRAM_EXECUTABLE: return "CL_INVALID_PROGRAM_EXECUTABLE";
	case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
	case CL_INVALID_KERNEL_DEFINITION: return "CL_INVALID_KERNEL_DEFINITION";
	case CL_INVALID_KERNEL: return "CL_INVALID_KERNEL";
	case CL_INVALID_ARG_INDEX: return "CL_INVALID_ARG_INDEX";
	case CL_INVALID_ARG_VALUE: return "CL_INVALID_ARG_VALUE";
	case CL_INVALID_ARG_SIZE: return "CL_INVALID_ARG_SIZE";
	case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
	case CL_INVALID_WORK_DIMENSION: return "CL_INVALID_WORK_DIMENSION";
	case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
	case CL_INVALID_WORK_ITEM_SIZE: return "CL_INVALID_WORK_ITEM_SIZE";
	case CL_INVALID_GLOBAL_OFFSET: return "CL_INVALID_GLOBAL_OFFSET";
	case CL_INVALID_EVENT_WAIT_LIST: return "CL_INVALID_EVENT_WAIT_LIST";
	case CL_INVALID_OPERATION: return "CL_INVALID_OPERATION";
	case CL_INVALID_BUFFER_SIZE: return "CL_INVALID_BUFFER_SIZE";
	case -1001: return "CL_PLATFORM_NOT_FOUND_KHR";
	default: return "CL_UNKNOWN_ERROR";
	}
}

static cl_command_queue gsb_create_queue(cl_context ctx, cl_device_id device, cl_int *status) {
#if CL_TARGET_OPENCL_VERSION >= 200
	const cl_queue_properties props[] = {0};
	return clCreateCommandQueueWithProperties(ctx, device, props, status);
#else
	return clCreateCommandQueue(ctx, device, 0, status);
#endif
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/cwbudde/grayscalebench/internal/compute"
)

// clPlatformNotFound is CL_PLATFORM_NOT_FOUND_KHR, returned by the ICD loader
// when no vendor driver is installed.
const clPlatformNotFound = -1001

// Driver implements compute.Driver on the system OpenCL library.
type Driver struct{}

// Open loads the OpenCL runtime. A system without any platform still opens
// successfully and enumerates nothing.
func Open() (compute.Driver, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if status != C.CL_SUCCESS && status != clPlatformNotFound {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}
	return &Driver{}, nil
}

// Available reports whether this build links OpenCL.
func Available() bool { return true }

func (d *Driver) Platforms() ([]compute.PlatformID, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if status == clPlatformNotFound {
		return nil, nil
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	out := make([]compute.PlatformID, len(ids))
	for i, id := range ids {
		out[i] = compute.PlatformID(uintptr(unsafe.Pointer(id)))
	}
	return out, nil
}

func (d *Driver) PlatformInfo(p compute.PlatformID) (string, string, error) {
	id := clPlatform(p)
	name, err := getPlatformString(id, C.CL_PLATFORM_NAME)
	if err != nil {
		return "", "", err
	}
	vendor, err := getPlatformString(id, C.CL_PLATFORM_VENDOR)
	if err != nil {
		return "", "", err
	}
	return name, vendor, nil
}

func (d *Driver) GPUDevices(p compute.PlatformID) ([]compute.DeviceID, error) {
	platform := clPlatform(p)

	var count C.cl_uint
	status := C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, 0, nil, &count)
	if status == C.CL_DEVICE_NOT_FOUND {
		return nil, nil
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	out := make([]compute.DeviceID, len(ids))
	for i, id := range ids {
		out[i] = compute.DeviceID(uintptr(unsafe.Pointer(id)))
	}
	return out, nil
}

func (d *Driver) DeviceName(id compute.DeviceID) (string, error) {
	return getDeviceString(clDevice(id), C.CL_DEVICE_NAME)
}

func (d *Driver) DeviceMemory(id compute.DeviceID) (uint64, error) {
	var mem C.cl_ulong
	status := C.clGetDeviceInfo(clDevice(id), C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem), nil)
	if status != C.CL_SUCCESS {
		return 0, statusError("clGetDeviceInfo(globalMemSize)", status)
	}
	return uint64(mem), nil
}

func (d *Driver) CreateContext(id compute.DeviceID) (compute.ContextID, error) {
	device := clDevice(id)

	var status C.cl_int
	ctx := C.clCreateContext(nil, 1, &device, nil, nil, &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateContext", status)
	}
	return compute.ContextID(uintptr(unsafe.Pointer(ctx))), nil
}

func (d *Driver) ReleaseContext(c compute.ContextID) error {
	if status := C.clReleaseContext(clContext(c)); status != C.CL_SUCCESS {
		return statusError("clReleaseContext", status)
	}
	return nil
}

func (d *Driver) CreateQueue(c compute.ContextID, id compute.DeviceID) (compute.QueueID, error) {
	var status C.cl_int
	queue := C.gsb_create_queue(clContext(c), clDevice(id), &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateCommandQueue", status)
	}
	return compute.QueueID(uintptr(unsafe.Pointer(queue))), nil
}

func (d *Driver) ReleaseQueue(q compute.QueueID) error {
	if status := C.clReleaseCommandQueue(clQueue(q)); status != C.CL_SUCCESS {
		return statusError("clReleaseCommandQueue", status)
	}
	return nil
}

func (d *Driver) CreateBufferFrom(c compute.ContextID, host []byte) (compute.MemID, error) {
	if len(host) == 0 {
		return 0, statusError("clCreateBuffer(input)", C.CL_INVALID_BUFFER_SIZE)
	}

	var status C.cl_int
	mem := C.clCreateBuffer(clContext(c), C.CL_MEM_READ_ONLY|C.CL_MEM_COPY_HOST_PTR, C.size_t(len(host)), unsafe.Pointer(&host[0]), &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateBuffer(input)", status)
	}
	return compute.MemID(uintptr(unsafe.Pointer(mem))), nil
}

func (d *Driver) CreateBuffer(c compute.ContextID, size int) (compute.MemID, error) {
	var status C.cl_int
	mem := C.clCreateBuffer(clContext(c), C.CL_MEM_WRITE_ONLY, C.size_t(size), nil, &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateBuffer(output)", status)
	}
	return compute.MemID(uintptr(unsafe.Pointer(mem))), nil
}

func (d *Driver) ReleaseBuffer(m compute.MemID) error {
	if status := C.clReleaseMemObject(clMem(m)); status != C.CL_SUCCESS {
		return statusError("clReleaseMemObject", status)
	}
	return nil
}

func (d *Driver) CreateProgram(c compute.ContextID, source string) (compute.ProgramID, error) {
	src := C.CString(source)
	defer C.free(unsafe.Pointer(src))

	var status C.cl_int
	prog := C.clCreateProgramWithSource(clContext(c), 1, &src, nil, &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateProgramWithSource", status)
	}
	return compute.ProgramID(uintptr(unsafe.Pointer(prog))), nil
}

func (d *Driver) BuildProgram(p compute.ProgramID, id compute.DeviceID) error {
	device := clDevice(id)
	if status := C.clBuildProgram(clProgram(p), 1, &device, nil, nil, nil); status != C.CL_SUCCESS {
		return statusError("clBuildProgram", status)
	}
	return nil
}

func (d *Driver) BuildLog(p compute.ProgramID, id compute.DeviceID) ([]byte, error) {
	prog := clProgram(p)
	device := clDevice(id)

	var size C.size_t
	if status := C.clGetProgramBuildInfo(prog, device, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size); status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramBuildInfo(size)", status)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, int(size))
	if status := C.clGetProgramBuildInfo(prog, device, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil); status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramBuildInfo(log)", status)
	}
	return buf, nil
}

func (d *Driver) ReleaseProgram(p compute.ProgramID) error {
	if status := C.clReleaseProgram(clProgram(p)); status != C.CL_SUCCESS {
		return statusError("clReleaseProgram", status)
	}
	return nil
}

func (d *Driver) CreateKernel(p compute.ProgramID, name string) (compute.KernelID, error) {
	kernelName := C.CString(name)
	defer C.free(unsafe.Pointer(kernelName))

	var status C.cl_int
	k := C.clCreateKernel(clProgram(p), kernelName, &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateKernel", status)
	}
	return compute.KernelID(uintptr(unsafe.Pointer(k))), nil
}

func (d *Driver) SetKernelArgBuffer(k compute.KernelID, index int, m compute.MemID) error {
	mem := clMem(m)
	status := C.clSetKernelArg(clKernel(k), C.cl_uint(index), C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem))
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clSetKernelArg(%d)", index), status)
	}
	return nil
}

func (d *Driver) ReleaseKernel(k compute.KernelID) error {
	if status := C.clReleaseKernel(clKernel(k)); status != C.CL_SUCCESS {
		return statusError("clReleaseKernel", status)
	}
	return nil
}

func (d *Driver) EnqueueKernel(q compute.QueueID, k compute.KernelID, global int) error {
	size := C.size_t(global)
	status := C.clEnqueueNDRangeKernel(clQueue(q), clKernel(k), 1, nil, &size, nil, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueNDRangeKernel", status)
	}
	return nil
}

func (d *Driver) ReadBuffer(q compute.QueueID, m compute.MemID, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	status := C.clEnqueueReadBuffer(clQueue(q), clMem(m), C.CL_TRUE, 0, C.size_t(len(dst)), unsafe.Pointer(&dst[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer", status)
	}
	return nil
}

func clPlatform(h compute.PlatformID) C.cl_platform_id {
	return C.cl_platform_id(unsafe.Pointer(uintptr(h)))
}

func clDevice(h compute.DeviceID) C.cl_device_id {
	return C.cl_device_id(unsafe.Pointer(uintptr(h)))
}

func clContext(h compute.ContextID) C.cl_context {
	return C.cl_context(unsafe.Pointer(uintptr(h)))
}

func clQueue(h compute.QueueID) C.cl_command_queue {
	return C.cl_command_queue(unsafe.Pointer(uintptr(h)))
}

func clProgram(h compute.ProgramID) C.cl_program {
	return C.cl_program(unsafe.Pointer(uintptr(h)))
}

func clKernel(h compute.KernelID) C.cl_kernel {
	return C.cl_kernel(unsafe.Pointer(uintptr(h)))
}

func clMem(h compute.MemID) C.cl_mem {
	return C.cl_mem(unsafe.Pointer(uintptr(h)))
}

func getPlatformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var size C.size_t
	status := C.clGetPlatformInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(value)", status)
	}

	return trimNull(buf), nil
}

// getDeviceString reads a string property through a fixed-size buffer and
// falls back to a sized read when the value does not fit.
func getDeviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	buf := make([]byte, compute.MaxDeviceNameBytes)
	var size C.size_t
	status := C.clGetDeviceInfo(id, param, C.size_t(len(buf)), unsafe.Pointer(&buf[0]), &size)
	if status == C.CL_SUCCESS {
		return trimNull(buf[:int(size)]), nil
	}
	if status != C.CL_INVALID_VALUE {
		return "", statusError("clGetDeviceInfo(value)", status)
	}

	status = C.clGetDeviceInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf = make([]byte, int(size))
	status = C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(value)", status)
	}

	return trimNull(buf), nil
}

func trimNull(buf []byte) string {
	for len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

func statusError(prefix string, status C.cl_int) error {
	return fmt.Errorf("%s: %s (%d)", prefix, C.GoString(C.gsb_cl_error_string(status)), int(status))
}

var _ compute.Driver = (*Driver)(nil)
