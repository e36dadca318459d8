package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Skotchmaster/bookstore/internal/apperr"
)

func TestAuthorize(t *testing.T) {
	seller := Identity{UserID: 1, Username: "s1", Role: RoleSeller}
	otherSeller := Identity{UserID: 2, Username: "s2", Role: RoleSeller}
	buyer := Identity{UserID: 3, Username: "b", Role: RoleBuyer}
	admin := Identity{UserID: 4, Username: "a", Role: RoleAdmin}

	tests := []struct {
		name    string
		id      Identity
		act     Action
		res     *Resource
		allowed bool
	}{
		{"seller creates book", seller, BookCreate, nil, true},
		{"buyer cannot create book", buyer, BookCreate, nil, false},
		{"admin cannot create book", admin, BookCreate, nil, false},
		{"owner updates book", seller, BookUpdate, &Resource{OwnerID: 1}, true},
		{"non-owner cannot update book", otherSeller, BookUpdate, &Resource{OwnerID: 1}, false},
		{"non-owner cannot delete book", otherSeller, BookDelete, &Resource{OwnerID: 1}, false},
		{"role gate without resource", otherSeller, BookDelete, nil, true},
		{"buyer confirms", buyer, OrderConfirm, nil, true},
		{"seller cannot confirm", seller, OrderConfirm, nil, false},
		{"owner changes status", seller, OrderStatus, &Resource{OwnerID: 1}, true},
		{"other seller cannot change status", otherSeller, OrderStatus, &Resource{OwnerID: 1}, false},
		{"admin manages users", admin, UserManage, nil, true},
		{"seller cannot manage users", seller, UserManage, nil, false},
		{"unknown action", admin, Action("nope"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.id, tt.act, tt.res)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrForbidden)
			}
		})
	}
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole("buyer"))
	assert.True(t, ValidRole("seller"))
	assert.True(t, ValidRole("admin"))
	assert.False(t, ValidRole("user"))
	assert.False(t, ValidRole(""))
}
