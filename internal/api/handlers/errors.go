package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/entitled/internal/api/middleware"
	"github.com/Wikid82/entitled/internal/models"
	"github.com/Wikid82/entitled/internal/services"
)

var statusByKind = []struct {
	kind   error
	status int
}{
	{services.ErrAuthentication, http.StatusUnauthorized},
	{services.ErrAuthorization, http.StatusForbidden},
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrValidation, http.StatusBadRequest},
	{services.ErrConflict, http.StatusConflict},
	{services.ErrCrypto, http.StatusInternalServerError},
}

// respondError maps a service error to a status code and a caller-safe message.
// Integrity failures keep their own message and are logged as security events;
// uncategorized errors become a generic 500.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrCrypto) {
		middleware.GetRequestLogger(c).WithError(err).
			WithField("security_event", true).Error("integrity verification failed")
	}
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			msg := services.PublicMessage(err)
			if msg == "" {
				msg = m.kind.Error()
			}
			c.JSON(m.status, gin.H{"error": msg})
			return
		}
	}

	middleware.GetRequestLogger(c).WithError(err).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// badRequest reports a malformed body without echoing binder internals.
func badRequest(c *gin.Context, err error) {
	middleware.GetRequestLogger(c).WithError(err).Debug("invalid request body")
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

// currentUser returns the authenticated caller or aborts with 401.
func currentUser(c *gin.Context) (*models.User, bool) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	return u, true
}
