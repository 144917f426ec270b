package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Role names. Keep these stable; they are part of the API contract.
const (
	// RoleOperator covers human callers placing and inspecting calls.
	RoleOperator = "operator"
	// RoleService is for machine callers: the voice platform webhook
	// forwarder and internal automation.
	RoleService = "service"
	// RoleAdmin additionally unlocks maintenance tasks and token minting.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func ValidRole(role string) bool {
	return role == RoleOperator || role == RoleService || role == RoleAdmin
}

// Claims are the only supported JWT claims shape for this service. Subject
// identifies the caller; Role drives route-level authorization.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
