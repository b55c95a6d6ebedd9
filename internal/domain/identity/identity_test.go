package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw     string
		want    Role
		wantErr bool
	}{
		{"supplier", RoleSupplier, false},
		{" Pregoeiro ", RoleAuctioneer, false},
		{"AUTORIDADE", RoleAuthority, false},
		{"cidadao", RoleCitizen, false},
		{"system", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRole(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRole)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCapabilityTable(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleCitizen, ActionSendMessage, false},
		{RoleCitizen, ActionViewSession, true},
		{RoleSupplier, ActionSubmitBid, true},
		{RoleSupplier, ActionCancelAnyBid, false},
		{RoleSupplier, ActionSendPrivate, false},
		{RoleAuctioneer, ActionSubmitBid, false},
		{RoleAuctioneer, ActionToggleChat, true},
		{RoleAuctioneer, ActionDecideResource, false},
		{RoleAuthority, ActionDecideResource, true},
		{RoleAdmin, ActionChangeStatus, false},
		{RoleSupport, ActionSendMessage, false},
		{RoleSystem, ActionTick, true},
		{RoleSystem, ActionSubmitBid, false},
		{Role("GHOST"), ActionViewSession, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.role, tt.action))
		})
	}
}

func TestCallerHelpers(t *testing.T) {
	c := Caller{UserID: "u1", Role: RoleSupplier, CompanyID: "c1"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "c1", c.SupplierKey())
	assert.True(t, c.Matches("u1"))
	assert.True(t, c.Matches("c1"))
	assert.False(t, c.Matches(""))
	assert.Equal(t, "supplier:u1", c.Actor())
	assert.Equal(t, "u1", c.DisplayName())

	assert.ErrorIs(t, Caller{Role: RoleSupplier}.Validate(), ErrMissingUserID)
	assert.ErrorIs(t, Caller{UserID: "x", Role: "BOGUS"}.Validate(), ErrInvalidRole)
	assert.Equal(t, "u2", Caller{UserID: "u2"}.SupplierKey())
}

func TestPrivilegedFor(t *testing.T) {
	tests := []struct {
		name   string
		caller Caller
		want   bool
	}{
		{"admin", Caller{UserID: "adm", Role: RoleAdmin}, true},
		{"auctioneer of the agency", Caller{UserID: "p1", Role: RoleAuctioneer, AgencyID: "agency-1"}, true},
		{"auctioneer of another agency", Caller{UserID: "p2", Role: RoleAuctioneer, AgencyID: "agency-2"}, false},
		{"auctioneer without agency", Caller{UserID: "p3", Role: RoleAuctioneer}, false},
		{"authority of the agency", Caller{UserID: "a1", Role: RoleAuthority, AgencyID: "agency-1"}, false},
		{"supplier", Caller{UserID: "s1", Role: RoleSupplier}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caller.PrivilegedFor("agency-1"))
		})
	}
}
