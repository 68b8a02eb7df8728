package compute

import "fmt"

// MaxDeviceNameBytes caps a device name, longer names are truncated.
const MaxDeviceNameBytes = 256

// BytesPerPixel is the work-item granularity of a dispatch.
const BytesPerPixel = 4

// Device describes one GPU-class compute device of a catalog snapshot.
type Device struct {
	// Index is the position in the catalog snapshot.
	Index       int    `json:"index"`
	Name        string `json:"name"`
	MemoryBytes uint64 `json:"memoryBytes"`
	Platform    string `json:"platform"`
	Vendor      string `json:"vendor"`

	id DeviceID
}

// ID returns the driver handle of the device.
func (d Device) ID() DeviceID {
	return d.id
}

func (d Device) String() string {
	return fmt.Sprintf("#%d %s (%s, %d MiB)", d.Index, d.Name, d.Platform, d.MemoryBytes>>20)
}
