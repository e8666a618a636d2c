package logging

import (
	"testing"

	"beaconcore/testutil"
)

func TestLoggingIsStandalone(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "logging is built before any component")
}
