package email

import (
	"strings"

	"eduplatform/internal/types"
)

// DefaultDashboardURL is used when no dashboard URL is configured.
const DefaultDashboardURL = "https://app.eduplatform.io"

// LinkBuilder points each role at the page where activity keeps the account
// alive: students at their essays, professors at their rooms.
type LinkBuilder struct {
	base string
}

// NewLinkBuilder creates a LinkBuilder rooted at dashboardURL. Without a
// dashboard URL every role gets DefaultDashboardURL.
func NewLinkBuilder(dashboardURL string) *LinkBuilder {
	return &LinkBuilder{base: strings.TrimRight(strings.TrimSpace(dashboardURL), "/")}
}

// ResourceLink implements lifecycle.LinkBuilder.
func (b *LinkBuilder) ResourceLink(acct types.Account) string {
	if b.base == "" {
		return DefaultDashboardURL
	}
	switch acct.Role {
	case types.RoleStudent:
		return b.base + "/student/essays"
	case types.RoleProfessor:
		return b.base + "/professor/rooms"
	default:
		return b.base
	}
}
