// Package board implements the hotplug-aware board runtime: USB transport
// events materialise Board instances via a descriptor registry, each board
// owns its control/chip-data channels and thermal controller, and spawns
// hash threads handed off to the scheduler.
package board

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// USBMatch is the static match pattern a BoardDescriptor registers against.
// VendorID/ProductID are mandatory; Interface and SerialPrefix are optional
// refinements that raise a descriptor's specificity score.
type USBMatch struct {
	VendorID     uint16
	ProductID    uint16
	Interface    *int
	SerialPrefix string
}

// Specificity scores a match pattern: more constraints registered means a
// higher score, so the most specific matching descriptor wins when several
// apply to the same device.
func (m USBMatch) Specificity() int {
	score := 2 // vendor + product are mandatory
	if m.Interface != nil {
		score++
	}
	if m.SerialPrefix != "" {
		score++
	}
	return score
}

// Matches reports whether the given connected-device info satisfies this
// pattern.
func (m USBMatch) Matches(info UsbDeviceInfo) bool {
	if m.VendorID != info.VendorID || m.ProductID != info.ProductID {
		return false
	}
	if m.Interface != nil && (info.Interface == nil || *m.Interface != *info.Interface) {
		return false
	}
	if m.SerialPrefix != "" && (info.Serial == "" || len(info.Serial) < len(m.SerialPrefix) || info.Serial[:len(m.SerialPrefix)] != m.SerialPrefix) {
		return false
	}
	return true
}

// Factory opens a board's channels and starts its monitor/control loops
// given a matched connected device. It returns the Board handle and the
// watch receiver seeded with the board's initial state.
type Factory func(ctx context.Context, info UsbDeviceInfo) (*Board, *BoardRegistration, error)

// VirtualFactory opens a software-only board keyed by a type tag, bypassing
// USB entirely (e.g. the CPU miner).
type VirtualFactory func(ctx context.Context, tag string) (*Board, *BoardRegistration, error)

// BoardDescriptor is a static registration record for a physical USB board
// type: a match pattern, a human name, and a factory.
type BoardDescriptor struct {
	Name    string
	Match   USBMatch
	Factory Factory
}

// VirtualBoardDescriptor registers a software-only board type, keyed by tag
// (e.g. "cpu") rather than a USB match pattern.
type VirtualBoardDescriptor struct {
	Name    string
	Tag     string
	Factory VirtualFactory
}

// BoardRegistry holds every descriptor self-registered at program start. Its
// descriptor lists are immutable after startup: Register calls are expected
// only from package init() functions, never concurrently with lookups.
type BoardRegistry struct {
	mu       sync.RWMutex
	physical []BoardDescriptor
	virtual  map[string]VirtualBoardDescriptor
	sealed   bool
}

// globalRegistry is the process-wide registry that board-type packages
// self-register into via their init() functions, mirroring the "no central
// registration file" inventory mechanism described for board factories.
var globalRegistry = NewBoardRegistry()

// NewBoardRegistry builds an empty registry (exposed for tests; production
// code uses Global()).
func NewBoardRegistry() *BoardRegistry {
	return &BoardRegistry{virtual: make(map[string]VirtualBoardDescriptor)}
}

// Global returns the process-wide board registry that self-registering
// board packages populate from their init() functions.
func Global() *BoardRegistry {
	return globalRegistry
}

// Register adds a physical board descriptor. Panics if called after Seal,
// since the registry is defined to be immutable once startup completes.
func (r *BoardRegistry) Register(d BoardDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("board: cannot register %q after registry is sealed", d.Name))
	}
	r.physical = append(r.physical, d)
}

// RegisterVirtual adds a virtual board descriptor keyed by tag.
func (r *BoardRegistry) RegisterVirtual(d VirtualBoardDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("board: cannot register virtual %q after registry is sealed", d.Name))
	}
	r.virtual[d.Tag] = d
}

// Seal freezes the registry; called once at the end of program startup.
func (r *BoardRegistry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Match returns the highest-specificity descriptor matching info, with ties
// broken by registration order (first registered wins).
func (r *BoardRegistry) Match(info UsbDeviceInfo) (BoardDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []BoardDescriptor
	for _, d := range r.physical {
		if d.Match.Matches(info) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return BoardDescriptor{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Match.Specificity() > candidates[j].Match.Specificity()
	})
	return candidates[0], true
}

// MatchVirtual looks up a virtual board descriptor by tag.
func (r *BoardRegistry) MatchVirtual(tag string) (VirtualBoardDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.virtual[tag]
	return d, ok
}
