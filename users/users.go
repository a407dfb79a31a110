package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jrsteele09/go-uma-server/token"
	"golang.org/x/crypto/bcrypt"
)

// RoleType is a role granted to a resource owner and surfaced in the
// "role" claim.
type RoleType string

const (
	RoleAdministrator RoleType = "administrator"
	RoleUser          RoleType = "user"
)

// User is a resource owner able to authenticate with the password or sms
// grant.
type User struct {
	ID           string     `json:"id,omitempty"`           // Unique identifier, used as the "sub" claim
	Login        string     `json:"login,omitempty"`        // Login used by the password grant
	PasswordHash string     `json:"-"`                      // bcrypt hash, never serialized
	Email        string     `json:"email,omitempty"`        // User's email address
	PhoneNumber  string     `json:"phone_number,omitempty"` // Login used by the sms grant
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	DateJoined   time.Time  `json:"date_joined,omitempty"`
	Roles        []RoleType `json:"roles,omitempty"`

	Verified bool `json:"verified,omitempty"` // Verified, has the user confirmed their email
	Blocked  bool `json:"blocked,omitempty"`  // Blocked, has the user been blocked from logging in
}

// Claims is the full set of claims a user can contribute to a token. The
// issuer filters it by granted scope before use.
func (u *User) Claims() token.ClaimSet {
	claims := token.ClaimSet{{Type: "sub", Value: u.ID}}
	add := func(claimType string, value string) {
		if value != "" {
			claims = append(claims, token.Claim{Type: claimType, Value: value})
		}
	}

	add("name", strings.TrimSpace(u.FirstName+" "+u.LastName))
	add("given_name", u.FirstName)
	add("family_name", u.LastName)
	add("preferred_username", u.Login)
	add("email", u.Email)
	if u.Email != "" {
		claims = append(claims, token.Claim{Type: "email_verified", Value: u.Verified})
	}
	add("phone_number", u.PhoneNumber)

	if len(u.Roles) > 0 {
		roles := make([]string, 0, len(u.Roles))
		for _, r := range u.Roles {
			roles = append(roles, string(r))
		}
		claims = append(claims, token.Claim{Type: "role", Value: roles})
	}
	return claims
}

func (u *User) HasRole(role RoleType) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
