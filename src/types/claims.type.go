package types

import "github.com/golang-jwt/jwt/v4"

type Claims struct {
	Email     string `json:"email"`
	IsTeacher bool   `json:"isTeacher"`
	jwt.RegisteredClaims
}

// Caller is the authenticated user a request acts for.
type Caller struct {
	ID        string
	Email     string
	IsTeacher bool
}
