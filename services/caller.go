package services

import "strings"

const RoleAdmin = "admin"

// Caller is the request-scoped identity passed into every operation. It is
// built by the HTTP layer from gateway headers; services never read ambient
// session state.
type Caller struct {
	UserID         string
	Roles          []string
	OrganizationID string
}

func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func (c Caller) Anonymous() bool {
	return c.UserID == ""
}
