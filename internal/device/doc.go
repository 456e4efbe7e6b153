// Package device tracks the remote device fleet.
//
// The Registry stores device metadata in devices.json and owns a FIFO
// command queue per device. Commands can only be queued for registered
// devices; whether a device is online does not matter. Devices drain their
// queue by polling (see GetNextCommand), and other components observe
// changes through Subscribe.
//
// Usage:
//
//	reg := device.NewRegistry(jsonstore.New[device.Device](path))
//	reg.Subscribe(hub.OnDeviceEvent)
//
//	if _, err := reg.QueueCommand("dev-1", "sync", nil); errors.Is(err, device.ErrDeviceNotFound) {
//	    // tell the user the device is unknown
//	}
package device
