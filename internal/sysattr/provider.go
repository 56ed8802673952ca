// Package sysattr reads the machine attributes used for device
// fingerprinting and the wall clock used for timestamps. Nothing else in
// the system may depend on it; the attribute set is part of the fingerprint
// contract and changing it rebinds every identity.
package sysattr

import (
	"errors"
	"sort"
	"time"
)

var ErrClockUnavailable = errors.New("sysattr: system clock unavailable")

// NetInterface is one (name, MAC) pair contributing to the fingerprint.
type NetInterface struct {
	Name string
	MAC  string
}

// Attributes is the fixed machine-attribute set hashed into the device
// fingerprint. Field order here mirrors the hash input order.
type Attributes struct {
	CPUBrand        string
	CPUFrequencyMHz uint64
	TotalMemory     uint64
	Hostname        string
	Interfaces      []NetInterface
	OSName          string
	KernelVersion   string
}

// Provider supplies machine attributes and the current wall clock.
type Provider interface {
	Attributes() (Attributes, error)
	Now() (time.Time, error)
}

// SortInterfaces orders interfaces by name so the fingerprint does not
// depend on enumeration order.
func SortInterfaces(ifaces []NetInterface) {
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Name < ifaces[j].Name })
}

// Static is a fixed-attribute Provider for tests.
type Static struct {
	Attrs Attributes
	Clock time.Time
}

func (s *Static) Attributes() (Attributes, error) {
	attrs := s.Attrs
	attrs.Interfaces = append([]NetInterface(nil), s.Attrs.Interfaces...)
	SortInterfaces(attrs.Interfaces)
	return attrs, nil
}

func (s *Static) Now() (time.Time, error) {
	if s.Clock.IsZero() {
		return time.Now().UTC(), nil
	}
	return s.Clock, nil
}
