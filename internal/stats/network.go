package stats

import (
	"net"
	"strconv"

	psnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

const loopbackFlag = "loopback"

// pickIP returns the address at index (modulo the number of addresses) among the
// non loopback addresses of the interfaces. IPv4 addresses come first.
func pickIP(interfaces psnet.InterfaceStatList, index int) string {
	var v4, v6 []string

	for _, iface := range interfaces {
		if hasFlag(iface.Flags, loopbackFlag) {
			continue
		}

		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}

			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
				continue
			}

			if ip.To4() != nil {
				v4 = append(v4, ip.String())
			} else {
				v6 = append(v6, ip.String())
			}
		}
	}

	ips := append(v4, v6...)
	if len(ips) == 0 {
		return ""
	}

	i := index % len(ips)
	if i < 0 {
		i = -i
	}

	return ips[i]
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// listenPorts extracts the ports from listen addresses like "1935", ":1935", "0.0.0.0:1935" or "[::]:8080".
// Invalid addresses are skipped.
func listenPorts(addresses []string) []string {
	if len(addresses) == 0 {
		return nil
	}

	ports := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))

	for _, addr := range addresses {
		port := addr
		if _, p, err := net.SplitHostPort(addr); err == nil {
			port = p
		}

		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			zap.S().Debugw("invalid listen address", "address", addr)
			continue
		}

		if _, ok := seen[port]; ok {
			continue
		}

		seen[port] = struct{}{}
		ports = append(ports, port)
	}

	return ports
}
