package auth

import (
	"errors"
	"testing"

	"blinkworks/internal/domain"
)

func TestRelationshipChecks(t *testing.T) {
	designer := "designer-1"
	task := domain.Task{ID: "t1", UserID: "client-1", AssignedDesigner: &designer, Status: domain.StatusInProgress}
	admin := domain.User{ID: "admin-1", Role: domain.RoleAdmin}
	owner := domain.User{ID: "client-1", Role: domain.RoleClient}
	stranger := domain.User{ID: "client-2", Role: domain.RoleClient}
	assignee := domain.User{ID: "designer-1", Role: domain.RoleDesigner}
	other := domain.User{ID: "designer-2", Role: domain.RoleDesigner}

	tests := []struct {
		name string
		err  error
		perm string
	}{
		{"owner ok", RequireOwner(owner, task), ""},
		{"stranger not owner", RequireOwner(stranger, task), PermTaskOwner},
		{"admin not owner", RequireOwner(admin, task), PermTaskOwner},
		{"assignee ok", RequireAssignee(assignee, task), ""},
		{"other designer", RequireAssignee(other, task), PermTaskAssignee},
		{"admin reviews", RequireReviewer(admin, task), ""},
		{"owner reviews", RequireReviewer(owner, task), ""},
		{"designer cannot review", RequireReviewer(assignee, task), PermTaskReviewer},
		{"admin role", RequireRole(admin, domain.RoleAdmin), ""},
		{"client is not admin", RequireRole(owner, domain.RoleAdmin), PermAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.perm == "" {
				if tt.err != nil {
					t.Fatalf("unexpected error: %v", tt.err)
				}
				return
			}
			var fe ForbiddenError
			if !errors.As(tt.err, &fe) || fe.Permission != tt.perm {
				t.Fatalf("expected %s, got %v", tt.perm, tt.err)
			}
		})
	}
}

func TestCanView(t *testing.T) {
	market := domain.Task{UserID: "client-1", Status: domain.StatusInReview, PushedToMarketplace: true}
	if !CanView(domain.User{ID: "designer-9", Role: domain.RoleDesigner}, market) {
		t.Fatalf("designers should see marketplace tasks")
	}
	if CanView(domain.User{ID: "client-2", Role: domain.RoleClient}, market) {
		t.Fatalf("clients should not see other clients' tasks")
	}
}
