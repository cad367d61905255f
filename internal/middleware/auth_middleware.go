package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/warrenlibrary/library-backend/internal/errors"
	"github.com/warrenlibrary/library-backend/internal/models"
)

// ActorKey is the gin context key holding the authenticated models.Actor.
const ActorKey = "actor"

// Authorizer verifies a bearer token and returns the actor it was issued to.
type Authorizer interface {
	Authorize(token string) (models.Actor, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// token's actor in the context for the handlers.
func AuthMiddleware(auth Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := auth.Authorize(BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(ActorKey, actor)
		c.Next()
	}
}

// RequireRole only lets actors holding role through. It must run after
// AuthMiddleware.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortWithError(c, apperrors.Unauthorized("missing token"))
			return
		}

		if actor.Role != role {
			abortWithError(c, apperrors.Forbidden(string(role)+" access required"))
			return
		}

		c.Next()
	}
}

// ActorFrom returns the actor stored by AuthMiddleware.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	value, exists := c.Get(ActorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := value.(models.Actor)
	return actor, ok
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. Anything else yields "".
func BearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func abortWithError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if apperrors.As(err, &appErr) {
		c.AbortWithStatusJSON(appErr.HTTPStatus(), gin.H{"error": appErr.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
