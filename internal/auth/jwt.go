package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Guest is the display name used when no usable credential is present.
const Guest = "Guest"

// Claims is the payload the LMS API puts in its tokens.
type Claims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Decode reads the token payload WITHOUT verifying the signature. The result
// is advisory: it may prefill a display name but must never be used to
// authorize anything.
func Decode(token string) (Claims, error) {
	if token == "" {
		return Claims{}, errors.New("empty token")
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// DisplayName derives a chat display name from the credential: the name
// claim, then the email claim, then "User". Absent or undecodable tokens
// yield Guest.
func DisplayName(token string) string {
	claims, err := Decode(token)
	if err != nil {
		return Guest
	}
	switch {
	case claims.Name != "":
		return claims.Name
	case claims.Email != "":
		return claims.Email
	default:
		return "User"
	}
}
