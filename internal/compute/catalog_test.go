package compute_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/grayscalebench/internal/compute"
	"github.com/cwbudde/grayscalebench/internal/compute/computetest"
)

func TestCatalog_FlattensAllPlatforms(t *testing.T) {
	drv := computetest.New(
		computetest.Platform{Name: "AMD APP", Vendor: "Advanced Micro Devices, Inc.", Devices: []computetest.Device{
			{Name: "gfx1030", MemoryBytes: 16 << 30},
		}},
		computetest.Platform{Name: "CUDA", Vendor: "NVIDIA Corporation", Devices: []computetest.Device{
			{Name: "RTX 3080", MemoryBytes: 10 << 30},
			{Name: "RTX 3080", MemoryBytes: 10 << 30},
		}},
	)

	catalog := compute.NewCatalog(drv)
	devices := catalog.Devices()

	require.Len(t, devices, 3)
	assert.NoError(t, catalog.Reason())
	assert.Equal(t, "gfx1030", devices[0].Name)
	assert.Equal(t, "AMD APP", devices[0].Platform)
	assert.Equal(t, uint64(16<<30), devices[0].MemoryBytes)
	assert.Equal(t, "RTX 3080", devices[1].Name)
	assert.Equal(t, "RTX 3080", devices[2].Name)
	for i, d := range devices {
		assert.Equal(t, i, d.Index)
	}
	assert.NotEqual(t, devices[1].ID(), devices[2].ID())
}

func TestCatalog_NoPlatforms(t *testing.T) {
	catalog := compute.NewCatalog(computetest.New())

	assert.Empty(t, catalog.Devices())
	assert.ErrorIs(t, catalog.Reason(), compute.ErrNoPlatformsFound)
}

func TestCatalog_PlatformsQueryFails(t *testing.T) {
	drv := computetest.SingleGPU()
	drv.FailOn(computetest.OpPlatforms, errors.New("icd loader missing"))

	catalog := compute.NewCatalog(drv)

	assert.Empty(t, catalog.Devices())
	assert.ErrorIs(t, catalog.Reason(), compute.ErrNoPlatformsFound)
}

func TestCatalog_NoDevices(t *testing.T) {
	drv := computetest.New(
		computetest.Platform{Name: "CPU only"},
		computetest.Platform{Name: "Broken", DevicesErr: errors.New("CL_INVALID_PLATFORM")},
	)

	catalog := compute.NewCatalog(drv)

	assert.Empty(t, catalog.Devices())
	assert.Equal(t, 0, catalog.Len())
	assert.ErrorIs(t, catalog.Reason(), compute.ErrNoDevicesFound)
}

func TestCatalog_NilDriver(t *testing.T) {
	catalog := compute.NewCatalog(nil)

	assert.Empty(t, catalog.Devices())
	assert.ErrorIs(t, catalog.Reason(), compute.ErrNoPlatformsFound)
}

func TestCatalog_SkipsBrokenPlatform(t *testing.T) {
	drv := computetest.New(
		computetest.Platform{Name: "Broken", DevicesErr: errors.New("CL_OUT_OF_HOST_MEMORY")},
		computetest.Platform{Name: "Good", Devices: []computetest.Device{{Name: "GPU", MemoryBytes: 1 << 30}}},
	)

	catalog := compute.NewCatalog(drv)

	require.Equal(t, 1, catalog.Len())
	d, ok := catalog.Device(0)
	require.True(t, ok)
	assert.Equal(t, "Good", d.Platform)
}

func TestCatalog_TruncatesLongNames(t *testing.T) {
	long := strings.Repeat("x", 300)
	drv := computetest.New(computetest.Platform{Name: "P", Devices: []computetest.Device{{Name: long}}})

	d, ok := compute.NewCatalog(drv).Device(0)

	require.True(t, ok)
	assert.Len(t, d.Name, compute.MaxDeviceNameBytes)
}

func TestCatalog_DeviceOutOfRange(t *testing.T) {
	catalog := compute.NewCatalog(computetest.SingleGPU())

	_, ok := catalog.Device(1)
	assert.False(t, ok)
	_, ok = catalog.Device(-1)
	assert.False(t, ok)
}

func TestCatalog_DevicesReturnsCopy(t *testing.T) {
	catalog := compute.NewCatalog(computetest.SingleGPU())

	devices := catalog.Devices()
	devices[0].Name = "changed"

	d, _ := catalog.Device(0)
	assert.Equal(t, "Fake GPU", d.Name)
}

func TestCatalog_EnumerationLeavesNoResources(t *testing.T) {
	drv := computetest.SingleGPU()

	compute.NewCatalog(drv).Refresh()

	assert.Equal(t, 0, drv.LiveTotal())
}
