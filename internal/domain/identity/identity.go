// Package identity models the authenticated caller of the dispute boundary.
package identity

import (
	"errors"
	"strings"
)

var (
	ErrInvalidRole   = errors.New("invalid role")
	ErrMissingUserID = errors.New("user id is required")
)

type Role string

const (
	RoleCitizen    Role = "CITIZEN"
	RoleSupplier   Role = "SUPPLIER"
	RoleAuctioneer Role = "AUCTIONEER"
	RoleAuthority  Role = "AUTHORITY"
	RoleAdmin      Role = "ADMIN"
	RoleSupport    Role = "SUPPORT"
	// RoleSystem is reserved for the deadline evaluator and never parsed from a token.
	RoleSystem Role = "SYSTEM"
)

var roleAliases = map[string]Role{
	"CITIZEN":    RoleCitizen,
	"CIDADAO":    RoleCitizen,
	"SUPPLIER":   RoleSupplier,
	"FORNECEDOR": RoleSupplier,
	"AUCTIONEER": RoleAuctioneer,
	"PREGOEIRO":  RoleAuctioneer,
	"AGENCY":     RoleAuctioneer,
	"AUTHORITY":  RoleAuthority,
	"AUTORIDADE": RoleAuthority,
	"ADMIN":      RoleAdmin,
	"SUPPORT":    RoleSupport,
	"SUPORTE":    RoleSupport,
}

// ParseRole accepts the canonical names and the Portuguese aliases used by the auth provider.
func ParseRole(raw string) (Role, error) {
	role, ok := roleAliases[strings.ToUpper(strings.TrimSpace(raw))]
	if !ok {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Caller is the pre-authenticated identity attached to every request.
type Caller struct {
	UserID       string `json:"userId"`
	Name         string `json:"name,omitempty"`
	Role         Role   `json:"role"`
	CompanyID    string `json:"companyId,omitempty"`
	CompanySize  string `json:"companySize,omitempty"`
	CompanyState string `json:"companyState,omitempty"`
	AgencyID     string `json:"agencyId,omitempty"`
}

// System is the caller used for evaluator ticks.
func System(nodeID string) Caller {
	return Caller{UserID: "node:" + nodeID, Name: "Sistema", Role: RoleSystem}
}

func (c Caller) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrMissingUserID
	}
	if _, ok := capabilities[c.Role]; !ok {
		return ErrInvalidRole
	}
	return nil
}

// SupplierKey identifies the participating company, falling back to the user for individuals.
func (c Caller) SupplierKey() string {
	if c.CompanyID != "" {
		return c.CompanyID
	}
	return c.UserID
}

// Matches reports whether id designates this caller as a user or as a company.
func (c Caller) Matches(id string) bool {
	if id == "" {
		return false
	}
	return id == c.UserID || (c.CompanyID != "" && id == c.CompanyID)
}

func (c Caller) Actor() string {
	return strings.ToLower(string(c.Role)) + ":" + c.UserID
}

func (c Caller) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.UserID
}

// PrivilegedFor reports whether c sees every message and every sealed bid of a
// tender run by agencyID. Auctioneers are privileged only inside their own agency.
func (c Caller) PrivilegedFor(agencyID string) bool {
	switch c.Role {
	case RoleAdmin:
		return true
	case RoleAuctioneer:
		return c.AgencyID != "" && c.AgencyID == agencyID
	}
	return false
}

// AgencyBound roles act only on tenders of their own agency.
func (c Caller) AgencyBound() bool {
	return c.Role == RoleAuctioneer || c.Role == RoleAuthority
}

func (c Caller) Can(a Action) bool {
	return Can(c.Role, a)
}
