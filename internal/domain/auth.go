package domain

import "time"

// Role differentiates reporters, operators and service callers.
type Role string

const (
	RoleReporter Role = "REPORTER"
	RoleOperator Role = "OPERATOR"
	RoleService  Role = "SERVICE"
)

// Token represents issued authentication token metadata.
type Token struct {
	SubjectID string
	Name      string
	Role      Role
	ExpiresAt time.Time
	IssuedAt  time.Time
}
