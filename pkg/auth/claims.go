package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cinevault/cinevault-backend/pkg/enums"
)

// AccessTokenClaims is the typed JWT presented by clients. Tokens are minted
// by the identity service; this backend only validates them.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
