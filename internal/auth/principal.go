package auth

import "github.com/plotark/plotark/internal/models"

// GuestAllowance is the fixed number of generations a guest may run within
// one request lifecycle. It is never persisted or decremented.
const GuestAllowance = 3

// GuestID is the sentinel user ID carried by guest principals.
const GuestID = -1

// RejectReason classifies why a credential was rejected.
type RejectReason string

// RejectReason values produced by the resolver.
const (
	ReasonMissing      RejectReason = "missing"
	ReasonExpired      RejectReason = "expired"
	ReasonInvalid      RejectReason = "invalid"
	ReasonUserNotFound RejectReason = "user-not-found"
)

// Principal is the resolved authorization context for a request. Exactly one
// of Guest, AuthenticatedUser, or Rejected implements it per request.
type Principal interface {
	isPrincipal()
}

// Guest is an anonymous principal with a fixed, non-persisted allowance.
type Guest struct {
	Allowance int
}

func (Guest) isPrincipal() {}

// AuthenticatedUser wraps a resolved user record.
type AuthenticatedUser struct {
	User *models.User
}

func (AuthenticatedUser) isPrincipal() {}

// Rejected is a terminal principal that short-circuits the request.
type Rejected struct {
	Reason RejectReason
}

func (Rejected) isPrincipal() {}

// NewGuest returns a guest principal with the fixed allowance.
func NewGuest() Guest {
	return Guest{Allowance: GuestAllowance}
}
