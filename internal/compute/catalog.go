package compute

import (
	"fmt"
	"log/slog"
	"strings"
)

// Catalog enumerates GPU-class devices across every platform of a driver.
// Devices are flattened in platform order without filtering or de-duplication.
type Catalog struct {
	driver  Driver
	devices []Device
	reason  error
}

// NewCatalog creates a catalog and takes the first snapshot. A nil driver
// yields an empty catalog.
func NewCatalog(driver Driver) *Catalog {
	c := &Catalog{driver: driver}
	c.Refresh()
	return c
}

// Refresh discards the current snapshot and enumerates again. It never fails:
// an empty result is a degraded state whose cause is reported by Reason.
func (c *Catalog) Refresh() []Device {
	c.devices, c.reason = enumerate(c.driver)
	if c.reason != nil {
		slog.Warn("No GPU devices available", "reason", c.reason)
	} else {
		slog.Debug("Device catalog refreshed", "devices", len(c.devices))
	}
	return c.Devices()
}

// Devices returns a copy of the current snapshot, index-stable until Refresh.
func (c *Catalog) Devices() []Device {
	out := make([]Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// Device returns the descriptor at index i of the current snapshot.
func (c *Catalog) Device(i int) (Device, bool) {
	if i < 0 || i >= len(c.devices) {
		return Device{}, false
	}
	return c.devices[i], true
}

// Len returns the number of devices in the snapshot.
func (c *Catalog) Len() int {
	return len(c.devices)
}

// Reason returns why the snapshot is empty, or nil when it is not.
// The error matches ErrNoPlatformsFound or ErrNoDevicesFound.
func (c *Catalog) Reason() error {
	return c.reason
}

func enumerate(driver Driver) ([]Device, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: no compute driver", ErrNoPlatformsFound)
	}

	platforms, err := driver.Platforms()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPlatformsFound, err)
	}
	if len(platforms) == 0 {
		return nil, ErrNoPlatformsFound
	}

	var devices []Device
	for _, p := range platforms {
		platformName, vendor, err := driver.PlatformInfo(p)
		if err != nil {
			slog.Warn("Skipping platform", "error", err)
			continue
		}

		ids, err := driver.GPUDevices(p)
		if err != nil {
			slog.Warn("Skipping platform devices", "platform", platformName, "error", err)
			continue
		}

		for _, id := range ids {
			name, err := driver.DeviceName(id)
			if err != nil {
				slog.Warn("Skipping device", "platform", platformName, "error", err)
				continue
			}
			mem, err := driver.DeviceMemory(id)
			if err != nil {
				slog.Warn("Skipping device", "platform", platformName, "device", name, "error", err)
				continue
			}

			devices = append(devices, Device{
				Index:       len(devices),
				Name:        truncateName(name),
				MemoryBytes: mem,
				Platform:    platformName,
				Vendor:      vendor,
				id:          id,
			})
		}
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

func truncateName(name string) string {
	name = strings.TrimRight(name, "\x00")
	if len(name) <= MaxDeviceNameBytes {
		return name
	}
	return strings.ToValidUTF8(name[:MaxDeviceNameBytes], "")
}
