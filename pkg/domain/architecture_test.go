package domain_test

import (
	"testing"

	"cloudmock/testutil"
)

// The domain package is shared by handlers and every store backend, so it
// may depend on neither.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "pkg/domain must not depend on internal packages")
}

func TestDomainDoesNotImportDrivers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.DriverImportForbidden, "pkg/domain must stay driver-agnostic")
}
