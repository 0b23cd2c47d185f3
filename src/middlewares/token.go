package middlewares

import (
	"hallpass/src/models"
	"hallpass/src/types"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const SESSION_COOKIE = "session"

func tokenFrom(ctx *gin.Context) string {
	bearerToken := ctx.GetHeader("Authorization")
	if strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(bearerToken, "Bearer "))
	}
	if cookie, err := ctx.Cookie(SESSION_COOKIE); err == nil {
		return cookie
	}
	return ""
}

// IssueSessionToken signs a session token for user. The auth flow that hands
// these out lives outside this service; it is used by seeding tools and tests.
func IssueSessionToken(secret []byte, user *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &types.Claims{
		Email:     user.Email,
		IsTeacher: user.IsTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
