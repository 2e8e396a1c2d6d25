package helpers

import "github.com/google/uuid"

type AuthClaims struct {
	*CustomClaims
	UserID uuid.UUID `json:"id"`
	Role   string    `json:"role"`
	Email  string    `json:"email,omitempty"`
}

// Helper methods for role checking
func (ac *AuthClaims) IsOwner() bool {
	return ac.Role == "owner"
}

func (ac *AuthClaims) IsProvider() bool {
	return ac.Role == "provider"
}

func (ac *AuthClaims) IsAdmin() bool {
	return ac.Role == "admin"
}

func (ac *AuthClaims) HasRole(role string) bool {
	return ac.Role == role
}
