package client

import (
	"fmt"
	"net"
	"net/netip"
)

// Family is the address family of an Endpoint.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Endpoint is one side of a connection, tagged with the address family
// that was actually negotiated.  IPv4-mapped IPv6 addresses are
// recorded as IPv4.
type Endpoint struct {
	Family Family
	Addr   netip.AddrPort
}

// IsValid reports whether the endpoint was populated.
func (e Endpoint) IsValid() bool { return e.Family != FamilyUnknown }

func (e Endpoint) String() string {
	if !e.IsValid() {
		return "unknown"
	}
	return e.Addr.String()
}

// endpointOf converts a socket address into an Endpoint.  Addresses
// that are not IP based (pipes, some tunnelled channels) are an error.
func endpointOf(a net.Addr) (Endpoint, error) {
	if a == nil {
		return Endpoint{}, fmt.Errorf("no address")
	}

	var ap netip.AddrPort
	switch v := a.(type) {
	case *net.TCPAddr:
		ap = v.AddrPort()
	default:
		parsed, err := netip.ParseAddrPort(a.String())
		if err != nil {
			return Endpoint{}, fmt.Errorf("%s address %q: %w", a.Network(), a.String(), err)
		}
		ap = parsed
	}

	ip := ap.Addr().Unmap()
	if !ip.IsValid() {
		return Endpoint{}, fmt.Errorf("invalid address %q", a.String())
	}
	ep := Endpoint{Addr: netip.AddrPortFrom(ip, ap.Port())}
	if ip.Is4() {
		ep.Family = FamilyIPv4
	} else {
		ep.Family = FamilyIPv6
	}
	return ep, nil
}
