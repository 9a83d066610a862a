package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/service"
)

const sessionCookieName = "session"

// AuthHandlers contains HTTP handlers for the authentication endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *zap.Logger

	// secureCookies is disabled in development so the cookie survives plain http
	secureCookies bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, secureCookies bool, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService:   authService,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

// Nonce handles nonce issuance
func (h *AuthHandlers) Nonce(c *gin.Context) {
	nonce, err := h.authService.IssueNonce(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to issue nonce", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "SERVER_ERROR"})
		return
	}

	// Nonces are single-use; intermediaries must never serve a cached one
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"nonce":     nonce.Value,
		"expiresAt": nonce.ExpiresAt.UnixMilli(),
	})
}

// Verify handles signed message verification and session issuance
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "MESSAGE_MALFORMED", "details": "invalid request body"})
		return
	}

	session, verr := h.authService.Verify(c.Request.Context(), req.Address, req.Message, req.Signature)
	if verr != nil {
		c.JSON(statusForError(verr), gin.H{
			"ok":      false,
			"error":   verr.Code,
			"details": verr.UserMessage,
		})
		return
	}

	maxAge := int(h.authService.SessionTTL().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookieName, session.ID, maxAge, "/", "", h.secureCookies, true)

	c.JSON(http.StatusOK, gin.H{"ok": true, "sessionId": session.ID})
}

// Session reports whether the caller holds a live session
func (h *AuthHandlers) Session(c *gin.Context) {
	token := sessionToken(c)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	session, err := h.authService.Sessions().Get(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": true, "session": session})
}

// CreateSession mints a session directly; internal use by the verify step
// and development tooling
func (h *AuthHandlers) CreateSession(c *gin.Context) {
	var req struct {
		Address         string   `json:"address" binding:"required"`
		WorldIDVerified bool     `json:"world_id_verified"`
		Permissions     []string `json:"permissions"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "MESSAGE_MALFORMED", "details": "invalid request body"})
		return
	}

	session, err := h.authService.Sessions().Create(c.Request.Context(), req.Address, h.authService.SessionTTL(), core.SessionOptions{
		WorldIDVerified: req.WorldIDVerified,
		Permissions:     req.Permissions,
	})
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "SERVER_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "sessionId": session.ID})
}

// UpdateSession updates verification and permission flags on the caller's session
func (h *AuthHandlers) UpdateSession(c *gin.Context) {
	token := sessionToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "SESSION_REQUIRED"})
		return
	}

	var update core.SessionUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "MESSAGE_MALFORMED", "details": "invalid request body"})
		return
	}

	if !h.authService.Sessions().Update(c.Request.Context(), token, update) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "SESSION_NOT_FOUND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteSession destroys the caller's session and clears the cookie
func (h *AuthHandlers) DeleteSession(c *gin.Context) {
	token := sessionToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "SESSION_REQUIRED"})
		return
	}

	session, err := h.authService.Sessions().Get(c.Request.Context(), token)
	if err == nil {
		if err := h.authService.Logout(c.Request.Context(), session); err != nil {
			h.logger.Error("failed to destroy session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "SERVER_ERROR"})
			return
		}
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookieName, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Health is the liveness endpoint
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sessionToken reads the caller's session id from the cookie or, failing that,
// the Authorization bearer header
func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie != "" {
		return cookie
	}

	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return ""
}

// statusForError maps taxonomy entries to HTTP status codes
func statusForError(e *core.EnhancedError) int {
	switch e.Type {
	case core.MessageMalformed:
		return http.StatusBadRequest
	case core.SignatureInvalid, core.NonceNotFound, core.NonceAlreadyUsed, core.NonceExpired, core.MessageExpired:
		return http.StatusUnauthorized
	case core.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
