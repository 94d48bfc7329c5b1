package neighbor

import "github.com/mash-protocol/mle-go/pkg/mle"

// Device is a MAC device descriptor.
type Device struct {
	Ext          mle.ExtAddress
	ShortAddress uint16
	FrameCounter uint32
	KeySequence  uint32
}

// DeviceTable holds MAC device descriptors used for incoming frame
// security.
type DeviceTable struct {
	devices map[mle.ExtAddress]Device
}

// NewDeviceTable creates an empty device table.
func NewDeviceTable() *DeviceTable {
	return &DeviceTable{devices: make(map[mle.ExtAddress]Device)}
}

// Program installs or replaces the descriptor for d.Ext.
func (t *DeviceTable) Program(d Device) {
	t.devices[d.Ext] = d
}

// SetFrameCounter updates the incoming frame counter of an existing
// descriptor. It reports false if ext is unknown.
func (t *DeviceTable) SetFrameCounter(ext mle.ExtAddress, fc uint32) bool {
	d, ok := t.devices[ext]
	if !ok {
		return false
	}
	d.FrameCounter = fc
	t.devices[ext] = d
	return true
}

// Get returns the descriptor for ext.
func (t *DeviceTable) Get(ext mle.ExtAddress) (Device, bool) {
	d, ok := t.devices[ext]
	return d, ok
}

// Remove deletes the descriptor for ext.
func (t *DeviceTable) Remove(ext mle.ExtAddress) {
	delete(t.devices, ext)
}

// Len returns the number of descriptors.
func (t *DeviceTable) Len() int {
	return len(t.devices)
}
