package domain

import (
	"testing"

	"silatcore/testutil"
)

// The domain vocabulary sits below every other layer; it must never reach
// into implementation packages.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"pkg/domain must stay free of internal imports")
}
