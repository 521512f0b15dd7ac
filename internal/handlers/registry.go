package handlers

import "cloudmock/internal/router"

// CRUD lists every resource domain's factory in registration order. Ordering
// only matters where patterns overlap; none of these sets do.
func CRUD() []router.Factory {
	return []router.Factory{
		Linodes,
		NodeBalancers,
		Firewalls,
		VPCs,
		Volumes,
		Domains,
		Support,
		Quotas,
		Events,
	}
}
