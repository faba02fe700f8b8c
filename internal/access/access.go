// Package access decides whether a caller may perform an operation.
//
// Authorize is a pure function of (principal, operation). It does no I/O:
// resolving the principal's current role is the caller's job (see
// service.Gate), which keeps this table trivially testable.
package access

import (
	"fmt"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
)

// Operation is a gated action.
type Operation int

const (
	OpListPosts Operation = iota
	OpReadPost
	OpVote
	OpReadComments
	OpReadUser
	OpRegisterUser

	OpCreatePost
	OpDeletePost
	OpCreateComment
	OpReportComment
	OpRecordPayment

	OpSetRole
	OpListUsers
	OpListReports
	OpResolveReport
	OpViewAdminStats
)

// Tier is the minimum standing an operation needs.
type Tier int

const (
	TierAnyone Tier = iota
	TierIdentified
	TierAdmin
)

var required = map[Operation]Tier{
	OpListPosts:    TierAnyone,
	OpReadPost:     TierAnyone,
	OpVote:         TierAnyone,
	OpReadComments: TierAnyone,
	OpReadUser:     TierAnyone,
	OpRegisterUser: TierAnyone,

	OpCreatePost:    TierIdentified,
	OpDeletePost:    TierIdentified, // ownership is checked by the post service
	OpCreateComment: TierIdentified,
	OpReportComment: TierIdentified,
	OpRecordPayment: TierIdentified,

	OpSetRole:        TierAdmin,
	OpListUsers:      TierAdmin,
	OpListReports:    TierAdmin,
	OpResolveReport:  TierAdmin,
	OpViewAdminStats: TierAdmin,
}

var opNames = map[Operation]string{
	OpListPosts:      "list posts",
	OpReadPost:       "read post",
	OpVote:           "vote",
	OpReadComments:   "read comments",
	OpReadUser:       "read user",
	OpRegisterUser:   "register user",
	OpCreatePost:     "create post",
	OpDeletePost:     "delete post",
	OpCreateComment:  "create comment",
	OpReportComment:  "report comment",
	OpRecordPayment:  "record payment",
	OpSetRole:        "change a user's role",
	OpListUsers:      "list users",
	OpListReports:    "list reports",
	OpResolveReport:  "resolve a report",
	OpViewAdminStats: "view admin statistics",
}

func (op Operation) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

// Required returns the tier op needs. Unknown operations need admin.
func Required(op Operation) Tier {
	if t, ok := required[op]; ok {
		return t
	}
	return TierAdmin
}

// Principal is a verified caller. A nil *Principal is an anonymous caller.
type Principal struct {
	Email string
	Role  model.Role
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == model.RoleAdmin
}

// Authorize returns nil when p may perform op, an Unauthorized error when
// op needs an identity and p is nil, and a Forbidden error when p is known
// but its role is too low.
func Authorize(p *Principal, op Operation) error {
	tier := Required(op)
	if tier == TierAnyone {
		return nil
	}
	if p == nil || p.Email == "" {
		return apperror.Unauthorized(fmt.Sprintf("sign in to %s", op))
	}
	if tier == TierAdmin && !p.IsAdmin() {
		return apperror.Forbidden(fmt.Sprintf("only admins may %s", op))
	}
	return nil
}

// Allowed is the boolean form of Authorize.
func Allowed(p *Principal, op Operation) bool {
	return Authorize(p, op) == nil
}
