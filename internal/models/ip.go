package models

import (
	"net/netip"
	"strings"
)

// IP is an address assignment in "a.b.c.d/nn" notation.
type IP struct {
	ID        int    `json:"id"`
	IPAddress string `json:"ip_address"`
	ServerID  *int   `json:"server_id,omitempty"`
}

// Host returns the address without the prefix length.
func (ip *IP) Host() string {
	host, _, _ := strings.Cut(ip.IPAddress, "/")
	return host
}

func (ip *IP) Validate() error {
	if _, err := netip.ParsePrefix(ip.IPAddress); err != nil {
		return &ValidationError{Field: "ip_address", Message: "expected address/prefix, e.g. 192.0.2.10/32"}
	}
	return nil
}
