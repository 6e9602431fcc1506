package api

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"roofpro-hub/internal/permissions"
)

func TestPageBounds(t *testing.T) {
	page, limit, offset := PageRequest{}.Bounds()
	assert.Equal(t, []int{1, 20, 0}, []int{page, limit, offset})

	page, limit, offset = PageRequest{Page: 3, PageSize: 500}.Bounds()
	assert.Equal(t, []int{3, 100, 200}, []int{page, limit, offset})
}

func TestNewPageResponse(t *testing.T) {
	assert.True(t, NewPageResponse(PageRequest{Page: 1, PageSize: 10}, 11).HasMore)
	assert.False(t, NewPageResponse(PageRequest{Page: 2, PageSize: 10}, 20).HasMore)
}

func TestActorCan(t *testing.T) {
	rep := Actor{UserID: uuid.New(), Role: "sales_rep"}
	assert.True(t, rep.Can(permissions.CommissionsCreate))
	assert.False(t, rep.Can(permissions.CommissionsPay))
	assert.True(t, Actor{}.IsZero())
}

func TestActorAuthorize(t *testing.T) {
	assert.Equal(t, codes.Unauthenticated, status.Code(Actor{}.Authorize()))

	rep := Actor{UserID: uuid.New(), Role: "sales_rep"}
	assert.NoError(t, rep.Authorize())
	assert.NoError(t, rep.Authorize(permissions.CommissionsPay, permissions.CommissionsCreate))
	assert.Equal(t, codes.PermissionDenied, status.Code(rep.Authorize(permissions.UsersManage)))

	assert.True(t, rep.Owns(rep.UserID))
	assert.False(t, rep.Owns(uuid.New()))
}
