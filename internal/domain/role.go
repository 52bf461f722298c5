package domain

import "fmt"

// Role is the enumerated set of actor roles known to the system.
type Role string

const (
	RoleDrafter  Role = "drafter"
	RoleReviewer Role = "reviewer"
	RoleAuditor  Role = "auditor"
	RoleAdmin    Role = "admin"
	RoleReadOnly Role = "readonly"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	switch role {
	case RoleDrafter, RoleReviewer, RoleAuditor, RoleAdmin, RoleReadOnly:
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Capabilities is the explicit permission set granted to a role. Checks go
// through these booleans, never through dynamic attribute probing.
type Capabilities struct {
	CanCreateCases   bool
	CanEditDrafts    bool
	CanReviewCases   bool
	CanApproveCases  bool
	CanAuditCases    bool
	CanLockCases     bool
	CanExportReports bool
	CanReloadTerms   bool
}

// Capabilities returns the permission set for the role. Unknown roles get the
// zero value, which denies everything.
func (r Role) Capabilities() Capabilities {
	switch r {
	case RoleDrafter:
		return Capabilities{
			CanCreateCases:   true,
			CanEditDrafts:    true,
			CanExportReports: true,
		}
	case RoleReviewer:
		return Capabilities{
			CanCreateCases:   true,
			CanEditDrafts:    true,
			CanReviewCases:   true,
			CanApproveCases:  true,
			CanLockCases:     true,
			CanExportReports: true,
		}
	case RoleAuditor:
		return Capabilities{
			CanReviewCases:   true,
			CanAuditCases:    true,
			CanExportReports: true,
		}
	case RoleAdmin:
		return Capabilities{
			CanCreateCases:   true,
			CanEditDrafts:    true,
			CanReviewCases:   true,
			CanApproveCases:  true,
			CanAuditCases:    true,
			CanLockCases:     true,
			CanExportReports: true,
			CanReloadTerms:   true,
		}
	default:
		return Capabilities{}
	}
}
