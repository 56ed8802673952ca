package sysattr

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
)

// System reads live machine attributes via gopsutil.
type System struct{}

func NewSystem() *System {
	return &System{}
}

func (s *System) Attributes() (Attributes, error) {
	var attrs Attributes

	// Individual probes may fail on exotic platforms; a probe failure
	// contributes empty bytes rather than aborting, matching the
	// best-effort attribute collection of the shipped product. Host info
	// is the one mandatory probe: without hostname and OS the fingerprint
	// would be too weak to bind anything.
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		attrs.CPUBrand = infos[0].ModelName
		attrs.CPUFrequencyMHz = uint64(infos[0].Mhz)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		attrs.TotalMemory = vm.Total
	}

	hostInfo, err := host.Info()
	if err != nil {
		return Attributes{}, fmt.Errorf("sysattr: host info: %w", err)
	}
	attrs.Hostname = hostInfo.Hostname
	attrs.OSName = hostInfo.OS
	attrs.KernelVersion = hostInfo.KernelVersion

	if ifaces, err := gopsnet.Interfaces(); err == nil {
		for _, iface := range ifaces {
			if iface.HardwareAddr == "" {
				continue // loopback and virtual interfaces without MACs
			}
			attrs.Interfaces = append(attrs.Interfaces, NetInterface{
				Name: iface.Name,
				MAC:  iface.HardwareAddr,
			})
		}
	}
	SortInterfaces(attrs.Interfaces)
	return attrs, nil
}

func (s *System) Now() (time.Time, error) {
	now := time.Now().UTC()
	if now.Unix() <= 0 {
		return time.Time{}, ErrClockUnavailable
	}
	return now, nil
}
