package helpers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type CustomClaims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateToken verifies a bearer token. When AUTH_JWKS_URL is set the token
// is validated against the identity provider's JWKS; otherwise it falls back
// to the HS256 shared secret in JWT_SECRET.
func ValidateToken(tokenStr string) (*CustomClaims, error) {
	jwksURL := os.Getenv("AUTH_JWKS_URL")
	if jwksURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{Ctx: ctx})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch JWKS: %v", err)
		}
		defer jwks.EndBackground()

		return parseWithKeyfunc(tokenStr, jwks.Keyfunc)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("neither AUTH_JWKS_URL nor JWT_SECRET is set")
	}
	return parseWithKeyfunc(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
}

func parseWithKeyfunc(tokenStr string, kf jwt.Keyfunc) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, kf)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %v", err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	return claims, nil
}

const completionCodeBytes = 6

// NewCompletionCode returns a short random opaque token the provider hands to
// the owner out of band. URL-safe so it survives QR scanners and deep links.
func NewCompletionCode() (string, error) {
	buf := make([]byte, completionCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate completion code: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CompletionQRPayload is what gets rendered into the QR code the provider
// shows the owner.
type CompletionQRPayload struct {
	BookingID  string    `json:"booking_id"`
	Code       string    `json:"code"`
	ProviderID uuid.UUID `json:"provider_id"`
	IssuedAt   time.Time `json:"issued_at"`
}

// EncodeQRPayload serializes the payload for embedding in a QR image.
func EncodeQRPayload(p CompletionQRPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr payload: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
