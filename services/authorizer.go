package services

import (
	"context"

	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
)

// VerifierAuthorizer decides who may rule on proofs for an organization's
// challenges. The policy itself lives outside this engine.
type VerifierAuthorizer interface {
	IsAuthorizedVerifier(ctx context.Context, userID, organizationID string) (bool, error)
}

// AuthorizerFunc adapts a plain function.
type AuthorizerFunc func(ctx context.Context, userID, organizationID string) (bool, error)

func (f AuthorizerFunc) IsAuthorizedVerifier(ctx context.Context, userID, organizationID string) (bool, error) {
	return f(ctx, userID, organizationID)
}

var verifierRoles = []string{models.OrgRoleOwner, models.OrgRoleVerifier, models.OrgRoleTeacher}

// MembershipAuthorizer grants verification to owners, verifiers and teachers
// registered on the organization.
type MembershipAuthorizer struct {
	Orgs repositories.OrganizationRepo
}

func (a MembershipAuthorizer) IsAuthorizedVerifier(ctx context.Context, userID, organizationID string) (bool, error) {
	if userID == "" || organizationID == "" {
		return false, nil
	}
	ok, err := a.Orgs.HasMemberWithRole(ctx, nil, organizationID, userID, verifierRoles)
	if err != nil {
		return false, storageErr("check verifier membership", err)
	}
	return ok, nil
}
