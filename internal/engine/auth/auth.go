package auth

import (
	"fmt"

	"blinkworks/internal/domain"
)

// Permissions checked by the engine. They name the relationship the actor
// must have with the task, not a stored grant.
const (
	PermAdmin        = "role.admin"
	PermClient       = "role.client"
	PermDesigner     = "role.designer"
	PermTaskOwner    = "task.owner"
	PermTaskAssignee = "task.assignee"
	PermTaskReviewer = "task.reviewer"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	ActorID    string
}

func (e ForbiddenError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required for %s", e.Permission, e.ActorID)
}

func rolePermission(r domain.Role) string {
	switch r {
	case domain.RoleAdmin:
		return PermAdmin
	case domain.RoleClient:
		return PermClient
	case domain.RoleDesigner:
		return PermDesigner
	}
	return "role." + string(r)
}

// RequireRole passes if the user holds one of roles.
func RequireRole(u domain.User, roles ...domain.Role) error {
	for _, r := range roles {
		if u.Role == r {
			return nil
		}
	}
	perm := PermAdmin
	if len(roles) > 0 {
		perm = rolePermission(roles[0])
	}
	return ForbiddenError{Permission: perm, ActorID: u.ID}
}

// RequireOwner passes only for the client who created the task.
func RequireOwner(u domain.User, t domain.Task) error {
	if u.Role == domain.RoleClient && t.UserID == u.ID {
		return nil
	}
	return ForbiddenError{Permission: PermTaskOwner, ActorID: u.ID}
}

// RequireAssignee passes only for the designer currently assigned to the task.
func RequireAssignee(u domain.User, t domain.Task) error {
	if u.Role == domain.RoleDesigner && t.AssignedTo(u.ID) {
		return nil
	}
	return ForbiddenError{Permission: PermTaskAssignee, ActorID: u.ID}
}

// RequireReviewer passes for admins and for the owning client.
func RequireReviewer(u domain.User, t domain.Task) error {
	if u.Role == domain.RoleAdmin || (u.Role == domain.RoleClient && t.UserID == u.ID) {
		return nil
	}
	return ForbiddenError{Permission: PermTaskReviewer, ActorID: u.ID}
}

// CanView reports whether u may read t. Designers see marketplace tasks and their own.
func CanView(u domain.User, t domain.Task) bool {
	switch u.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleClient:
		return t.UserID == u.ID
	case domain.RoleDesigner:
		return t.AssignedTo(u.ID) || t.InMarketplace()
	}
	return false
}
