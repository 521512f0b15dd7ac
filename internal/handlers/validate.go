package handlers

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"cloudmock/pkg/domain"
)

var labelPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]+$`)

// checkLabel enforces the API label rule: bounded length drawn from
// alphanumerics, dots, dashes and underscores.
func checkLabel(v *domain.ValidationError, field, label string, min, max int) {
	switch {
	case len(label) < min || len(label) > max:
		v.Add(field, fmt.Sprintf("Label must be between %d and %d characters.", min, max))
	case !labelPattern.MatchString(label):
		v.Add(field, "Label can only contain ASCII letters, numbers, dashes, dots, and underscores.")
	}
}

func checkRequired(v *domain.ValidationError, field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, fmt.Sprintf("%s is required.", field))
	}
}

func checkRange(v *domain.ValidationError, field string, value, min, max int) {
	if value < min || value > max {
		v.Add(field, fmt.Sprintf("Must be between %d and %d.", min, max))
	}
}

func checkOneOf(v *domain.ValidationError, field, value string, allowed ...string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.Add(field, fmt.Sprintf("Must be one of %s.", strings.Join(allowed, ", ")))
}

// checkPrivateAddress requires host:port with a private IPv4 host, as
// NodeBalancer backends must sit on the private network.
func checkPrivateAddress(v *domain.ValidationError, field, address string) {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		v.Add(field, "Must be a valid IPv4 address and port.")
		return
	}
	if !ap.Addr().Is4() || !ap.Addr().IsPrivate() {
		v.Add(field, "Must be a private IPv4 address.")
	}
}

func checkCIDR(v *domain.ValidationError, field, cidr string) {
	p, err := netip.ParsePrefix(cidr)
	if err != nil || !p.Addr().Is4() {
		v.Add(field, "Must be a valid IPv4 range in CIDR notation.")
	}
}
