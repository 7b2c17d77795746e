package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTeam(t *testing.T) {
	r := NewRegistry()

	team, err := r.Register("Alpha Capital", RoleMarketMaker)
	require.NoError(t, err)
	assert.NotEmpty(t, team.TeamID)
	assert.Equal(t, "Alpha Capital", team.Name)
	assert.Equal(t, RoleMarketMaker, team.Role)
	assert.True(t, strings.HasPrefix(team.APIKey, "ek_"))

	got, ok := r.Get(team.TeamID)
	require.True(t, ok)
	assert.Equal(t, team.Name, got.Name)
	assert.Equal(t, RoleMarketMaker, r.RoleOf(team.TeamID))
}

func TestRegisterDuplicateNameCaseInsensitive(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("Alpha", RoleRetail)
	require.NoError(t, err)

	_, err = r.Register("  ALPHA ", RoleHedgeFund)
	assert.ErrorIs(t, err, ErrTeamNameTaken)
}

func TestRegisterInvalidRole(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("Alpha", "liquidator")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAuthenticateKey(t *testing.T) {
	r := NewRegistry()
	team, err := r.Register("Alpha", RoleArbitrageDesk)
	require.NoError(t, err)

	teamID, role, err := r.AuthenticateKey(team.APIKey)
	require.NoError(t, err)
	assert.Equal(t, team.TeamID, teamID)
	assert.Equal(t, RoleArbitrageDesk, role)

	_, _, err = r.AuthenticateKey("ek_bogus")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestRoleOfUnknownTeam(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.RoleOf("TEAM-404"))
}
