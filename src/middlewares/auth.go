package middlewares

import (
	"context"
	"errors"
	"hallpass/src/models"
	"hallpass/src/types"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const callerKey = "caller"

// UserLookup resolves the subject of a session token to a stored user.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware authenticates the request from a Bearer token or the
// session cookie and stores the caller on the context.
func AuthMiddleware(secret []byte, users UserLookup) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		reqToken := tokenFrom(ctx)
		if reqToken == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": types.ErrUnauthenticated.Error()})
			return
		}
		claims := &types.Claims{}
		tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !tkn.Valid || claims.Subject == "" {
			if err != nil {
				log.Printf("token error: %s\n", err.Error())
			}
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": types.ErrUnauthenticated.Error()})
			return
		}

		user, err := users.GetUser(ctx.Request.Context(), claims.Subject)
		var notFound *types.NotFoundError
		if errors.As(err, &notFound) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": types.ErrUnauthenticated.Error()})
			return
		}
		if err != nil {
			log.Printf("Error loading user [%s]: %s\n", claims.Subject, err.Error())
			ctx.AbortWithStatusJSON(types.ErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		ctx.Set(callerKey, types.Caller{ID: user.ID, Email: user.Email, IsTeacher: user.IsTeacher})
	}
}

// CallerFrom returns the authenticated caller. It is false on routes outside AuthMiddleware.
func CallerFrom(ctx *gin.Context) (types.Caller, bool) {
	v, ok := ctx.Get(callerKey)
	if !ok {
		return types.Caller{}, false
	}
	caller, ok := v.(types.Caller)
	return caller, ok
}
