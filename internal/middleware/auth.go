package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/pkg/auth"
)

const (
	ContextUserID      = "user_id"
	ContextUserEmail   = "user_email"
	ContextUserRole    = "user_role"
	ContextWorkContext = "work_context"

	HeaderEstablishmentContext = "X-Establishment-Context"
)

// AdminChecker decides establishment admin rights.
type AdminChecker interface {
	HasAdminRights(ctx context.Context, userID, establishmentID uuid.UUID) (bool, error)
}

// ContextVerifier validates signed work context tokens.
type ContextVerifier interface {
	Verify(token string) (*model.WorkContext, error)
}

type AuthMiddleware struct {
	tokens   auth.JWTService
	admins   AdminChecker
	contexts ContextVerifier
}

func NewAuthMiddleware(tokens auth.JWTService, admins AdminChecker, contexts ContextVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		admins:   admins,
		contexts: contexts,
	}
}

// Authenticate verifies the bearer token and stores the caller in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			return
		}

		claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// RequireSuperAdmin lets only platform super-admins through.
func (m *AuthMiddleware) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsSuperAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("super-admin role required"))
			return
		}
		c.Next()
	}
}

// RequireAdmin lets through super-admins and professionals holding admin
// rights on the establishment named by the route parameter.
func (m *AuthMiddleware) RequireAdmin(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsSuperAdmin(c) {
			c.Next()
			return
		}

		userID, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
			return
		}
		establishmentID, err := uuid.Parse(c.Param(param))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.NewErrorResponse("invalid establishment ID"))
			return
		}

		isAdmin, err := m.admins.HasAdminRights(c.Request.Context(), userID, establishmentID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to check admin rights"))
			return
		}
		if !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("establishment admin rights required"))
			return
		}
		c.Next()
	}
}

// WorkContext verifies the optional establishment context header. A token
// issued to someone else is refused.
func (m *AuthMiddleware) WorkContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderEstablishmentContext)
		if token == "" {
			c.Next()
			return
		}

		wc, err := m.contexts.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid establishment context"))
			return
		}
		if userID, ok := UserID(c); !ok || userID != wc.ProfessionalID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("establishment context belongs to another user"))
			return
		}

		c.Set(ContextWorkContext, wc)
		c.Next()
	}
}

// UserID returns the authenticated caller.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func IsSuperAdmin(c *gin.Context) bool {
	return c.GetString(ContextUserRole) == auth.RoleSuperAdmin
}

// CurrentWorkContext returns the verified context of the request, if any.
func CurrentWorkContext(c *gin.Context) (*model.WorkContext, bool) {
	v, ok := c.Get(ContextWorkContext)
	if !ok {
		return nil, false
	}
	wc, ok := v.(*model.WorkContext)
	return wc, ok
}
