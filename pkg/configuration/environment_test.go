package configuration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlendingOptions_Validate(t *testing.T) {
	valid := BlendingOptions{
		DefaultLookbackMonths: 12,
		LowMinPolicies:        3,
		MediumMinPolicies:     10,
		HighMinPolicies:       25,
		HighMinLookbackMonths: 6,
	}
	require.NoError(t, valid.Validate())

	nonAscending := valid
	nonAscending.MediumMinPolicies = 2
	require.Error(t, nonAscending.Validate())

	zeroLookback := valid
	zeroLookback.DefaultLookbackMonths = 0
	require.Error(t, zeroLookback.Validate())
}

func TestValidateRLS(t *testing.T) {
	c := &Configuration{RLSEnforce: "ENFORCE", Database: DatabaseOptions{User: "agency_app"}}
	require.NoError(t, c.validateRLS())
	require.Equal(t, "enforce", c.RLSEnforce)

	c = &Configuration{RLSEnforce: "enforce", Database: DatabaseOptions{User: "postgres"}}
	require.Error(t, c.validateRLS())

	c = &Configuration{RLSEnforce: "sometimes"}
	require.Error(t, c.validateRLS())

	c = &Configuration{}
	require.NoError(t, c.validateRLS())
	require.Equal(t, "disabled", c.RLSEnforce)
}
