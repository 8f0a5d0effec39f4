package discovery

import (
	"net"
	"sort"
	"strings"
)

// MaxInstanceNameLength is the longest DNS label usable as an instance name.
const MaxInstanceNameLength = 63

// InstanceName turns an accessory name into a DNS-SD instance label.
// Dots are replaced since they would split the label, and the result is
// cut at MaxInstanceNameLength bytes without splitting a UTF-8 sequence.
func InstanceName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, ".", " "))
	if len(name) <= MaxInstanceNameLength {
		return name
	}
	cut := MaxInstanceNameLength
	for cut > 0 && name[cut]&0xC0 == 0x80 {
		cut--
	}
	return strings.TrimSpace(name[:cut])
}

// SortIPsByPreference sorts IP addresses by how a controller should try
// them.
//
// Priority order (highest to lowest):
//  1. IPv4 addresses
//  2. Global IPv6 unicast addresses
//  3. Unique Local Addresses (ULA, fc00::/7)
//  4. Link-local IPv6 addresses (fe80::/10), which need a zone to dial
//  5. Other addresses
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	ip = ip.To16()
	if ip == nil {
		return 99
	}

	if ip.IsLoopback() {
		return 80
	}
	if ip.IsMulticast() {
		return 90
	}

	if ip.To4() != nil {
		if ip.IsLinkLocalUnicast() {
			return 5
		}
		return 0
	}

	if isGlobalUnicast(ip) {
		return 1
	}
	if isUniqueLocal(ip) {
		return 2
	}
	if ip.IsLinkLocalUnicast() {
		return 3
	}

	return 10
}

// isGlobalUnicast returns true if the IP is a globally routable unicast address.
// This excludes private/ULA addresses.
func isGlobalUnicast(ip net.IP) bool {
	if !ip.IsGlobalUnicast() {
		return false
	}
	if isUniqueLocal(ip) {
		return false
	}
	if ip.To4() != nil && ip.IsPrivate() {
		return false
	}
	return true
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address (ULA).
// ULA range: fc00::/7 (fc00:: to fdff::)
func isUniqueLocal(ip net.IP) bool {
	if ip.To4() != nil {
		return false
	}
	ip = ip.To16()
	if ip == nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}

// GetLocalAddresses returns all non-loopback IP addresses on the host,
// sorted by preference.
func GetLocalAddresses() ([]net.IP, error) {
	var addresses []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if ip != nil && !ip.IsLoopback() {
				addresses = append(addresses, ip)
			}
		}
	}

	return SortIPsByPreference(addresses), nil
}
