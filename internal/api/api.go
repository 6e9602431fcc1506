// Package api holds the types shared by every service contract: the acting
// user and paging.
package api

import (
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"roofpro-hub/internal/permissions"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Actor is the authenticated user a request is made on behalf of.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Role   string    `json:"role"`
}

func (a Actor) Can(permission string) bool {
	return permissions.Allowed(a.Role, permission)
}

func (a Actor) IsZero() bool {
	return a.UserID == uuid.Nil
}

// Authorize returns Unauthenticated for a missing actor and PermissionDenied
// unless the actor holds at least one of perms. No perms means any
// authenticated actor passes.
func (a Actor) Authorize(perms ...string) error {
	if a.IsZero() {
		return status.Error(codes.Unauthenticated, "actor is required")
	}
	if len(perms) == 0 {
		return nil
	}
	for _, p := range perms {
		if a.Can(p) {
			return nil
		}
	}
	return status.Errorf(codes.PermissionDenied, "role %q lacks permission %s", a.Role, perms[0])
}

// Owns reports whether id is the actor's own user id.
func (a Actor) Owns(id uuid.UUID) bool {
	return !a.IsZero() && a.UserID == id
}

type PageRequest struct {
	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// Bounds returns the page, limit and offset after defaults and caps.
func (p PageRequest) Bounds() (page, limit, offset int) {
	page, limit = p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

type PageResponse struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	HasMore    bool  `json:"has_more"`
}

func NewPageResponse(p PageRequest, total int64) PageResponse {
	page, limit, offset := p.Bounds()
	return PageResponse{
		Page:       page,
		PageSize:   limit,
		TotalCount: total,
		HasMore:    int64(offset+limit) < total,
	}
}
