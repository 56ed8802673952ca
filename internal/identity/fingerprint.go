package identity

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"usenet-sync/go-core/internal/sysattr"
)

// Fingerprint hashes the fixed attribute sequence into a hex digest binding
// an identity to one machine. The input order is a compatibility contract:
// CPU brand, CPU frequency, total memory, hostname, sorted (interface, MAC)
// pairs, OS name, kernel version. Repeated calls on an unchanged machine
// must produce the same digest; a hostname, NIC, or memory change is meant
// to read as a different device.
func Fingerprint(attrs sysattr.Attributes) string {
	h := sha3.New256()
	var le [8]byte

	h.Write([]byte(attrs.CPUBrand))
	binary.LittleEndian.PutUint64(le[:], attrs.CPUFrequencyMHz)
	h.Write(le[:])
	binary.LittleEndian.PutUint64(le[:], attrs.TotalMemory)
	h.Write(le[:])
	h.Write([]byte(attrs.Hostname))

	ifaces := append([]sysattr.NetInterface(nil), attrs.Interfaces...)
	sysattr.SortInterfaces(ifaces)
	for _, iface := range ifaces {
		h.Write([]byte(iface.Name))
		h.Write([]byte(iface.MAC))
	}

	h.Write([]byte(attrs.OSName))
	h.Write([]byte(attrs.KernelVersion))
	return hex.EncodeToString(h.Sum(nil))
}
