package node

import (
	"encoding/base32"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// AddressKind tells how the host part of a SocketAddress is encoded.
type AddressKind int

const (
	AddressTCPIPv4 AddressKind = iota
	AddressTCPIPv6
	AddressOnionV3
	AddressHostname
)

const (
	onionV3Len       = 56
	maxHostnameLen   = 255
	onionSuffix      = ".onion"
	onionAlphabetLow = "abcdefghijklmnopqrstuvwxyz234567"
)

var onionEncoding = base32.NewEncoding(onionAlphabetLow).WithPadding(base32.NoPadding)

// SocketAddress is a peer network address as understood by the engine.
type SocketAddress struct {
	Kind AddressKind
	Host string
	Port uint16
}

// ParseSocketAddress parses a "host:port" string. IPv6 hosts must be
// bracketed. Hostnames are not resolved.
func ParseSocketAddress(s string) (SocketAddress, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return SocketAddress{}, fmt.Errorf("invalid socket address %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return SocketAddress{}, fmt.Errorf("invalid port in socket address %q", s)
	}
	if port == 0 {
		return SocketAddress{}, fmt.Errorf("port 0 in socket address %q", s)
	}
	if host == "" {
		return SocketAddress{}, fmt.Errorf("missing host in socket address %q", s)
	}

	addr := SocketAddress{Host: host, Port: uint16(port)}
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			addr.Kind = AddressTCPIPv4
			addr.Host = ip.To4().String()
		} else {
			addr.Kind = AddressTCPIPv6
			addr.Host = ip.String()
		}
		return addr, nil
	}

	lower := strings.ToLower(host)
	if strings.HasSuffix(lower, onionSuffix) {
		label := strings.TrimSuffix(lower, onionSuffix)
		if len(label) != onionV3Len {
			return SocketAddress{}, fmt.Errorf("only v3 onion addresses are supported: %q", host)
		}
		if _, err := onionEncoding.DecodeString(label); err != nil {
			return SocketAddress{}, fmt.Errorf("invalid onion address %q: %w", host, err)
		}
		addr.Kind = AddressOnionV3
		addr.Host = lower
		return addr, nil
	}

	if !validHostname(host) {
		return SocketAddress{}, fmt.Errorf("invalid hostname %q", host)
	}
	addr.Kind = AddressHostname
	return addr, nil
}

func validHostname(host string) bool {
	if len(host) > maxHostnameLen {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			default:
				return false
			}
		}
	}
	return true
}

// String renders the address as "host:port".
func (a SocketAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.FormatUint(uint64(a.Port), 10))
}
