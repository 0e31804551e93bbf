package domain

import (
	"regexp"
	"time"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9]{3,50}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// User represents a registered account. PasswordHash never leaves the
// server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the authenticated caller resolved from a bearer token
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// RegisterRequest is the payload for POST /auth/register
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the registration payload against schema constraints
func (r *RegisterRequest) Validate() error {
	var details []string
	if !usernameRe.MatchString(r.Username) {
		details = append(details, "username must be alphanumeric, 3-50 characters")
	}
	if !emailRe.MatchString(r.Email) {
		details = append(details, "email must be a valid email address")
	}
	if len(r.Password) < 8 {
		details = append(details, "password must be at least 8 characters")
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// LoginRequest is the payload for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the login payload for the required fields
func (r *LoginRequest) Validate() error {
	var details []string
	if !emailRe.MatchString(r.Email) {
		details = append(details, "email must be a valid email address")
	}
	if r.Password == "" {
		details = append(details, "password is required")
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// AuthResult is returned by registration and login
type AuthResult struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}
