package domain

import (
	"errors"

	"github.com/google/uuid"
)

// Tier identifies a principal's subscription tier, used by admission control
// to select per-tier budgets.
type Tier string

// Possible tier values
const (
	TierFree      Tier = "free"
	TierHousehold Tier = "household"
	TierPro       Tier = "pro"
)

// Common validation errors for AuthenticatedPrincipal
var (
	ErrEmptyPrincipalID = errors.New("principal ID cannot be empty")
	ErrInvalidTier      = errors.New("invalid tier")
)

// AuthenticatedPrincipal is the identity produced once at the authentication
// boundary and passed by value through the rest of the system. Downstream
// code never reconstructs it from request state.
type AuthenticatedPrincipal struct {
	ID          uuid.UUID `json:"id"`
	Tier        Tier      `json:"tier"`
	HouseholdID uuid.UUID `json:"household_id,omitempty"`
}

// NewPrincipal creates a validated AuthenticatedPrincipal. HouseholdID is
// optional and may be uuid.Nil for principals outside a shared household.
func NewPrincipal(id uuid.UUID, tier Tier, householdID uuid.UUID) (AuthenticatedPrincipal, error) {
	p := AuthenticatedPrincipal{
		ID:          id,
		Tier:        tier,
		HouseholdID: householdID,
	}

	if err := p.Validate(); err != nil {
		return AuthenticatedPrincipal{}, err
	}

	return p, nil
}

// Validate checks if the principal has valid data.
func (p AuthenticatedPrincipal) Validate() error {
	if p.ID == uuid.Nil {
		return ErrEmptyPrincipalID
	}

	switch p.Tier {
	case TierFree, TierHousehold, TierPro:
	default:
		return ErrInvalidTier
	}

	return nil
}

// RateKey returns the admission-control bucket key for this principal.
// Household members share one bucket so a single household cannot multiply
// its budget by adding members.
func (p AuthenticatedPrincipal) RateKey() string {
	if p.HouseholdID != uuid.Nil {
		return "household:" + p.HouseholdID.String()
	}
	return "user:" + p.ID.String()
}
