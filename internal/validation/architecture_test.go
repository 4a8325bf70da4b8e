package validation

import (
	"testing"

	"stockpile/testutil"
)

func TestValidationHasNoStorageDependencies(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InfraImport, testutil.ThirdPartyImport),
		"validation is pure")
}
