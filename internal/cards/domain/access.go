package domain

import (
	"strings"

	"argentum/internal/common/types"
)

// Role of the acting principal.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

// Actor is the already-validated access context for the current request.
// It is supplied by the boundary layer; the core never parses headers.
type Actor struct {
	Username   string
	CustomerID types.CustomerID
	Role       Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return strings.EqualFold(string(a.Role), string(RoleAdmin))
}

// CanAccess reports whether the actor may operate on a card owned by the
// given customer: admins always, otherwise only the owner.
func CanAccess(actor Actor, owner types.CustomerID) bool {
	if actor.IsAdmin() {
		return true
	}
	return !actor.CustomerID.IsEmpty() && actor.CustomerID == owner
}
