package services

import (
	"context"
	"fmt"
	"strings"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
)

// OrganizationService maintains who acts for a partner organization. The
// membership rows back MembershipAuthorizer.
type OrganizationService struct {
	Repos *repositories.Repos
	log   *logger.Logger
}

func NewOrganizationService(repos *repositories.Repos, log *logger.Logger) *OrganizationService {
	return &OrganizationService{Repos: repos, log: log.With("service", "OrganizationService")}
}

// AddMember sets a user's role in an organization. Platform admins and the
// organization's owners may do this.
func (s *OrganizationService) AddMember(ctx context.Context, caller Caller, organizationID, userID, role string) (*models.OrganizationMember, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case models.OrgRoleOwner, models.OrgRoleVerifier, models.OrgRoleTeacher, models.OrgRoleMember:
	default:
		return nil, validationErr("unknown organization role %q", role)
	}
	if organizationID == "" || userID == "" {
		return nil, validationErr("organization_id and user_id are required")
	}

	if !caller.HasRole(RoleAdmin) {
		owner, err := s.Repos.Organizations.HasMemberWithRole(ctx, nil, organizationID, caller.UserID, []string{models.OrgRoleOwner})
		if err != nil {
			return nil, storageErr("check owner", err)
		}
		if !owner {
			return nil, fmt.Errorf("%w: only owners manage organization %s", ErrForbidden, organizationID)
		}
	}

	m := &models.OrganizationMember{OrganizationID: organizationID, UserID: userID, Role: role}
	if err := s.Repos.Organizations.AddMember(ctx, nil, m); err != nil {
		return nil, storageErr("add organization member", err)
	}
	s.log.Info("organization member set", "organization_id", organizationID, "user_id", userID, "role", role)
	return m, nil
}
