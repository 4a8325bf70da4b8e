package main

import (
	"testing"

	"stockpile/testutil"
)

func TestCommandUsesFacadesOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImport,
		"the command wires storage through core and blob, never the adapters")
}
