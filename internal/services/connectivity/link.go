package connectivity

import "net"

// LinkChecker reports whether the OS has any usable network link.
type LinkChecker interface {
	LinkUp() bool
}

// SystemLink inspects the host's network interfaces.
type SystemLink struct{}

// LinkUp reports whether at least one non-loopback interface is up and has an
// address. Errors listing interfaces are treated as link up so the health
// probe decides.
func (SystemLink) LinkUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return true
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}

	return false
}

// StaticLink is a fixed LinkChecker.
type StaticLink bool

// LinkUp returns the fixed value.
func (s StaticLink) LinkUp() bool {
	return bool(s)
}
