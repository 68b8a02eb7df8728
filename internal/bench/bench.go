// Package bench runs the CPU and GPU grayscale paths on a loaded image and
// scores their wall-clock latency against each other.
package bench

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/grayscalebench/internal/compute"
	"github.com/cwbudde/grayscalebench/internal/imaging"
	"github.com/cwbudde/grayscalebench/internal/store"
)

const (
	DefaultKernelPath = "kernels/grayscale.cl"
	DefaultEntryPoint = "ToGrayscale"
)

var (
	// ErrNoImage is returned by the run operations before LoadImage.
	ErrNoImage = errors.New("no image loaded")
	// ErrDeviceIndex is returned by SelectDevice for an index outside the catalog.
	ErrDeviceIndex = errors.New("device index out of range")
)

// SampleSink receives every completed run.
type SampleSink interface {
	Write(s store.Sample) error
}

// Options configures a Bench.
type Options struct {
	// KernelPath is read on every GPU run.
	KernelPath string
	EntryPoint string
	// Store receives a record each time both paths have a sample for the
	// current image. Optional.
	Store store.Store
	// Samples receives every timed run. Optional.
	Samples SampleSink
}

// Run is the outcome of one path invocation.
type Run struct {
	Path   Path         `json:"path"`
	Millis int64        `json:"millis"`
	Device string       `json:"device,omitempty"`
	Image  *image.NRGBA `json:"-"`
}

// ImageInfo describes the loaded image.
type ImageInfo struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Bench owns the device catalog, the device session and the loaded image.
//
// All methods are safe for concurrent use. They are serialized, so a device
// rebind never overlaps a dispatch and every timing covers exactly one run.
type Bench struct {
	mu sync.Mutex

	opts    Options
	catalog *compute.Catalog
	session *compute.Session

	pixels    *imaging.PixelBuffer
	imageName string
	last      *image.NRGBA
	board     Scoreboard

	now func() time.Time
}

// New enumerates the devices of driver. A nil driver yields a bench whose
// GPU path is disabled.
func New(driver compute.Driver, opts Options) *Bench {
	if opts.KernelPath == "" {
		opts.KernelPath = DefaultKernelPath
	}
	if opts.EntryPoint == "" {
		opts.EntryPoint = DefaultEntryPoint
	}

	return &Bench{
		opts:    opts,
		catalog: compute.NewCatalog(driver),
		session: compute.NewSession(driver),
		now:     time.Now,
	}
}

// ListDevices returns the catalog snapshot and, when it is empty, the reason.
func (b *Bench) ListDevices() ([]compute.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.catalog.Devices(), b.catalog.Reason()
}

// RefreshDevices enumerates again. The bound device, if any, stays bound.
func (b *Bench) RefreshDevices() ([]compute.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.catalog.Refresh(), b.catalog.Reason()
}

// SelectDevice binds the device at index of the catalog snapshot. With an
// empty catalog it fails with the catalog reason without touching the driver.
func (b *Bench) SelectDevice(index int) (compute.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.catalog.Len() == 0 {
		return compute.Device{}, b.catalog.Reason()
	}
	dev, ok := b.catalog.Device(index)
	if !ok {
		return compute.Device{}, fmt.Errorf("%w: %d (have %d)", ErrDeviceIndex, index, b.catalog.Len())
	}

	if err := b.session.Bind(dev); err != nil {
		return compute.Device{}, err
	}
	return dev, nil
}

// SelectedDevice returns the bound device.
func (b *Bench) SelectedDevice() (compute.Device, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session.Device()
}

// LoadImage makes img the current image and invalidates both samples.
// name is only used in records and logs.
func (b *Bench) LoadImage(img image.Image, name string) error {
	if img == nil || img.Bounds().Empty() {
		return imaging.ErrEmptyImage
	}

	pixels := imaging.FromImage(img)
	if err := pixels.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pixels = pixels
	b.imageName = name
	b.last = nil
	b.board.Invalidate()

	slog.Info("Image loaded", "image", name, "width", b.pixels.Width, "height", b.pixels.Height)
	return nil
}

// LoadImageFile decodes path and loads it.
func (b *Bench) LoadImageFile(path string) error {
	img, err := imaging.Load(path)
	if err != nil {
		return err
	}
	return b.LoadImage(img, path)
}

// Image describes the current image.
func (b *Bench) Image() (ImageInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pixels == nil {
		return ImageInfo{}, false
	}
	return ImageInfo{Name: b.imageName, Width: b.pixels.Width, Height: b.pixels.Height}, true
}

// RunCPU converts the current image on the CPU and records its duration.
func (b *Bench) RunCPU() (Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pixels == nil {
		return Run{}, ErrNoImage
	}

	start := b.now()
	out := imaging.Grayscale(b.pixels)
	elapsed := b.now().Sub(start)

	run := Run{Path: PathCPU, Millis: elapsed.Milliseconds(), Image: out.ToNRGBA()}
	b.complete(run)
	return run, nil
}

// RunGPU converts the current image on the bound device and records its
// duration. The measured span covers repacking, reading the kernel source,
// the build, both transfers and the dispatch. On failure samples, session
// and catalog are left as they were.
func (b *Bench) RunGPU() (Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dev, bound := b.session.Device()
	if !bound {
		return Run{}, compute.ErrNotBound
	}
	if b.pixels == nil {
		return Run{}, ErrNoImage
	}

	start := b.now()

	input := b.pixels.Tight()
	source, err := compute.LoadKernelSource(b.opts.KernelPath)
	if err != nil {
		return Run{}, err
	}

	spec := compute.KernelSpec{Source: source, EntryPoint: b.opts.EntryPoint}
	pix, err := compute.Dispatch(b.session, spec, input, b.pixels.ByteCount(), b.pixels.Len())
	if err != nil {
		slog.Error("GPU run failed", "device", dev.Name, "kind", compute.Kind(err), "error", err)
		return Run{}, err
	}

	elapsed := b.now().Sub(start)

	out := imaging.FromTight(pix, b.pixels.Width, b.pixels.Height)
	run := Run{Path: PathGPU, Millis: elapsed.Milliseconds(), Device: dev.Name, Image: out.ToNRGBA()}
	b.complete(run)
	return run, nil
}

// Score returns the result for the current image once both paths ran.
func (b *Bench) Score() (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.board.Result()
}

// LastImage returns the output of the latest successful run on the current
// image, or nil.
func (b *Bench) LastImage() *image.NRGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Close releases the bound device.
func (b *Bench) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session.Unbind()
}

// complete records run and persists the sample and, when the scoreboard is
// full, the record. Persistence failures are logged only.
func (b *Bench) complete(run Run) {
	b.last = run.Image
	b.board.Record(run.Path, run.Millis)

	slog.Info("Run completed", "path", run.Path, "elapsed_ms", run.Millis, "device", run.Device)

	if b.opts.Samples != nil {
		sample := store.Sample{
			Path:      string(run.Path),
			Millis:    run.Millis,
			Device:    run.Device,
			Image:     b.imageName,
			Width:     b.pixels.Width,
			Height:    b.pixels.Height,
			Timestamp: b.now(),
		}
		if err := b.opts.Samples.Write(sample); err != nil {
			slog.Warn("Failed to write sample", "error", err)
		}
	}

	result, ok := b.board.Result()
	if !ok {
		return
	}
	slog.Info("Benchmark scored", "score", result.Score, "rank", result.Rank,
		"cpu_ms", result.CPUMillis, "gpu_ms", result.GPUMillis)

	if b.opts.Store == nil {
		return
	}
	dev, _ := b.session.Device()
	rec := store.NewRecord()
	rec.Image = b.imageName
	rec.Width = b.pixels.Width
	rec.Height = b.pixels.Height
	rec.Device = dev.Name
	rec.Platform = dev.Platform
	rec.CPUMillis = result.CPUMillis
	rec.GPUMillis = result.GPUMillis
	rec.Score = result.Score
	rec.Rank = string(result.Rank)
	if err := b.opts.Store.SaveRecord(rec); err != nil {
		slog.Warn("Failed to save record", "error", err)
	}
}
