package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/db"
)

const actorKey = "actor"

// UserFinder resolves the user a token was issued to.
type UserFinder interface {
	FindActiveUser(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// Guard authenticates the bearer token, loads its user and rejects tokens issued
// before the user's last password change.
func Guard(tokens *TokenManager, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, apperr.Unauthorized("You are not logged in. Please log in to get access."))
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			abort(c, apperr.Unauthorized("Not authenticated. "+err.Error()))
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			abort(c, apperr.Unauthorized("Not authenticated. Token subject is invalid."))
			return
		}

		user, err := users.FindActiveUser(c.Request.Context(), userID)
		if err != nil || user == nil {
			abort(c, apperr.Unauthorized("The user belonging to this token no longer exists."))
			return
		}

		if user.ChangedPasswordAfter(claims.IssuedAt.Time) {
			abort(c, apperr.Unauthorized("User recently changed password. Please log in again."))
			return
		}

		SetActor(c, user)
		c.Next()
	}
}

// RestrictTo allows the request through only when the authenticated user holds one of roles.
func RestrictTo(roles ...db.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor(c)
		if actor == nil || !slices.Contains(roles, actor.Role) {
			abort(c, apperr.Forbidden("You do not have permission to perform this action"))
			return
		}
		c.Next()
	}
}

// SetActor stores the authenticated user for downstream handlers.
func SetActor(c *gin.Context, user *db.User) {
	c.Set(actorKey, user)
}

// Actor returns the authenticated user, or nil outside guarded routes.
func Actor(c *gin.Context) *db.User {
	if v, ok := c.Get(actorKey); ok {
		if u, ok := v.(*db.User); ok {
			return u
		}
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"status": "fail", "message": err.Error()})
}
