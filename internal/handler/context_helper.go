package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/edu-portal-api/internal/middleware"
	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

func claimsFromContext(c *gin.Context) (*models.JWTClaims, bool) {
	return middleware.ClaimsFrom(c)
}

// actingUser resolves the caller or writes a 401.
func actingUser(c *gin.Context) (models.ActingUser, bool) {
	claims, ok := claimsFromContext(c)
	if !ok || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthenticated)
		return models.ActingUser{}, false
	}
	return claims.ActingUser(), true
}

// pathIDs reads uuid path params or writes a 404. No row can match a malformed id.
func pathIDs(c *gin.Context, names ...string) ([]string, bool) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		raw := strings.TrimSpace(c.Param(name))
		if _, err := uuid.Parse(raw); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, name+" is not a valid identifier"))
			return nil, false
		}
		ids = append(ids, raw)
	}
	return ids, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		var parseErr *time.ParseError
		if errors.As(err, &parseErr) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidTimeWindow.Code, appErrors.ErrInvalidTimeWindow.Status, "timestamps must be RFC 3339"))
			return false
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload"))
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body as the zero payload.
func bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dest)
}
