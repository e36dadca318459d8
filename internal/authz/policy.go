// Package authz holds the single authorization decision used by every
// protected route and service call.
package authz

import (
	"fmt"

	"github.com/Skotchmaster/bookstore/internal/apperr"
)

const (
	RoleAdmin  = "admin"
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleBuyer, RoleSeller:
		return true
	}
	return false
}

type Action string

const (
	BookCreate        Action = "book:create"
	BookUpdate        Action = "book:update"
	BookDelete        Action = "book:delete"
	BookListOwn       Action = "book:list_own"
	OrderPrepare      Action = "order:prepare"
	OrderConfirm      Action = "order:confirm"
	OrderHistory      Action = "order:history"
	OrderSales        Action = "order:sales"
	OrderStatus       Action = "order:status"
	PaymentCodeManage Action = "paymentcode:manage"
	UserManage        Action = "user:manage"
)

type Identity struct {
	UserID   uint
	Username string
	Role     string
}

// Resource describes what is being acted on. A zero OwnerID means the
// action is not owner-scoped.
type Resource struct {
	OwnerID uint
}

type rule struct {
	role      string
	ownerOnly bool
}

var rules = map[Action]rule{
	BookCreate:        {role: RoleSeller},
	BookUpdate:        {role: RoleSeller, ownerOnly: true},
	BookDelete:        {role: RoleSeller, ownerOnly: true},
	BookListOwn:       {role: RoleSeller},
	OrderPrepare:      {role: RoleBuyer},
	OrderConfirm:      {role: RoleBuyer},
	OrderHistory:      {role: RoleBuyer},
	OrderSales:        {role: RoleSeller},
	OrderStatus:       {role: RoleSeller, ownerOnly: true},
	PaymentCodeManage: {role: RoleSeller},
	UserManage:        {role: RoleAdmin},
}

// Authorize returns nil when id may perform act on res, otherwise an error
// wrapping apperr.ErrForbidden. Owner-scoped actions called without a
// resource only check the role; the owner check runs once the resource is
// loaded.
func Authorize(id Identity, act Action, res *Resource) error {
	r, ok := rules[act]
	if !ok {
		return fmt.Errorf("%w: unknown action %s", apperr.ErrForbidden, act)
	}
	if id.Role != r.role {
		return fmt.Errorf("%w: %s requires role %s", apperr.ErrForbidden, act, r.role)
	}
	if r.ownerOnly && res != nil && res.OwnerID != id.UserID {
		return fmt.Errorf("%w: not the owner", apperr.ErrForbidden)
	}
	return nil
}
