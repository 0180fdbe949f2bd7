package policy

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planModule = `
package travelgate

import rego.v1

default deny := false

deny if {
    input.purpose == ""
}

deny if {
    to_number(input.estimated_cost) > 10000
}
`

func TestRegoRule_FlagsPlan(t *testing.T) {
	rs, err := Load(ValidatorCatalog, []byte(`
rules:
  - type: rego
    name: purpose_and_cap
    code: REGO_PLAN
    message: Trip needs a purpose and must stay under the hard cap
    module: |`+indent(planModule)+`
`))
	require.NoError(t, err)

	results, err := rs.Evaluate(plan())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)

	p := plan()
	p.Purpose = ""
	results, err = rs.Evaluate(p)
	require.NoError(t, err)
	assert.False(t, results[0].Passed)
	assert.True(t, results[0].IsBlocking())
	assert.Equal(t, "Trip needs a purpose and must stay under the hard cap", results[0].Message)

	p = plan()
	p.EstimatedCost = decimal.NewFromInt(12000)
	results, err = rs.Evaluate(p)
	require.NoError(t, err)
	assert.False(t, results[0].Passed)
}

func TestRegoRule_CompileErrorAtLoad(t *testing.T) {
	_, err := Load(ValidatorCatalog, []byte(`
rules:
  - type: rego
    module: "package travelgate\n\ndeny if {"
`))
	cfgErr := requireConfigError(t, err)
	assert.Equal(t, "params.module", cfgErr.Field)
}

func TestRegoRule_NonBooleanQueryFailsClosed(t *testing.T) {
	rs, err := Load(ValidatorCatalog, []byte(`
rules:
  - type: rego
    query: data.travelgate.label
    module: "package travelgate\n\nlabel := \"x\"\n"
`))
	require.NoError(t, err)

	results, err := rs.Evaluate(plan())
	require.NoError(t, err)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Message, "could not be evaluated")
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "      " + line
		}
	}
	return "\n" + strings.Join(lines, "\n")
}
