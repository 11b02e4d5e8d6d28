package board

import (
	"context"
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"
)

// UsbDeviceInfo identifies a connected USB device for descriptor matching.
type UsbDeviceInfo struct {
	VendorID  uint16
	ProductID uint16
	Path      string // bus/address path, stable for the lifetime of the connection
	Serial    string
	Interface *int
}

// TransportEventKind discriminates a TransportEvent.
type TransportEventKind int

const (
	UsbDeviceConnected TransportEventKind = iota
	UsbDeviceDisconnected
)

// TransportEvent is published by the TransportWatcher on hotplug changes.
type TransportEvent struct {
	Kind TransportEventKind
	Info UsbDeviceInfo // valid for both kinds; Disconnected only guarantees Path
}

// TransportWatcher polls USB device enumeration and publishes arrival and
// departure events on a bounded channel, owned exclusively by the
// Backplane.
type TransportWatcher struct {
	pollInterval time.Duration
	events       chan TransportEvent
	log          *logrus.Entry
}

// NewTransportWatcher builds a watcher that polls at the given interval,
// publishing to a channel of the given capacity.
func NewTransportWatcher(pollInterval time.Duration, capacity int, log *logrus.Entry) *TransportWatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &TransportWatcher{
		pollInterval: pollInterval,
		events:       make(chan TransportEvent, capacity),
		log:          log,
	}
}

// Events returns the channel transport events are published on.
func (w *TransportWatcher) Events() <-chan TransportEvent {
	return w.events
}

// Run polls gousb device enumeration until ctx is cancelled, diffing against
// the previously seen device set to synthesise connect/disconnect events.
func (w *TransportWatcher) Run(ctx context.Context) {
	defer close(w.events)

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	seen := make(map[string]UsbDeviceInfo)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		current := w.enumerate(usbCtx)
		w.diff(ctx, seen, current)
		seen = current

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *TransportWatcher) enumerate(usbCtx *gousb.Context) map[string]UsbDeviceInfo {
	current := make(map[string]UsbDeviceInfo)
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	if err != nil {
		if w.log != nil {
			w.log.WithError(err).Warn("usb enumeration failed")
		}
		return current
	}
	for _, dev := range devices {
		path := dev.String()
		serial, _ := dev.SerialNumber()
		info := UsbDeviceInfo{
			VendorID:  uint16(dev.Desc.Vendor),
			ProductID: uint16(dev.Desc.Product),
			Path:      path,
			Serial:    serial,
		}
		current[path] = info
		dev.Close()
	}
	return current
}

func (w *TransportWatcher) diff(ctx context.Context, prev, current map[string]UsbDeviceInfo) {
	for path, info := range current {
		if _, ok := prev[path]; !ok {
			w.publish(ctx, TransportEvent{Kind: UsbDeviceConnected, Info: info})
		}
	}
	for path, info := range prev {
		if _, ok := current[path]; !ok {
			w.publish(ctx, TransportEvent{Kind: UsbDeviceDisconnected, Info: info})
		}
	}
}

func (w *TransportWatcher) publish(ctx context.Context, ev TransportEvent) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
