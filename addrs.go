package dashserve

import (
	"net"
	"sort"
	"strconv"
)

// NetworkURLs returns the URLs the server is reachable at from the local
// network, derived from the addresses of the host's interfaces.
// Loopback and link-local addresses are left out.
func NetworkURLs(port int) ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	return networkURLs(addrs, port), nil
}

func networkURLs(addrs []net.Addr, port int) []string {
	urls := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		default:
			continue
		}
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			continue
		}
		urls = append(urls, "http://"+net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	}
	sort.Strings(urls)
	return urls
}
