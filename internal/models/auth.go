package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates the roles the upstream identity provider issues.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleOperator   UserRole = "OPERATOR"
)

// JWTClaims represents the JWT payload for access tokens issued upstream.
// The engine trusts this identity and does not itself authenticate.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
