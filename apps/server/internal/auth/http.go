package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pokerdice/apps/server/internal/logger"
	"pokerdice/match"
)

var ErrMissingToken = errors.New("missing session token")

type HTTPHandler struct {
	svc Service
	log *zap.Logger
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	PlayerID     match.PlayerID `json:"player_id"`
	SessionToken string         `json:"session_token"`
}

type meResponse struct {
	PlayerID match.PlayerID `json:"player_id"`
	Username string         `json:"username"`
}

func NewHTTPHandler(svc Service) *HTTPHandler {
	return &HTTPHandler{svc: svc, log: logger.With(zap.String("component", "auth"))}
}

func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/auth")
	g.POST("/register", h.handleRegister)
	g.POST("/login", h.handleLogin)
	g.POST("/logout", h.handleLogout)
	g.GET("/me", h.handleMe)
}

// Identify resolves the bearer session on the request to a player.
func (h *HTTPHandler) Identify(c *gin.Context) (match.PlayerID, error) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		return 0, ErrMissingToken
	}
	player, _, ok := h.svc.ResolveSession(c.Request.Context(), token)
	if !ok {
		return 0, ErrInvalidCredentials
	}
	return player, nil
}

func (h *HTTPHandler) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	player, token, err := h.svc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.log.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		}
		return
	}
	c.JSON(http.StatusOK, authResponse{PlayerID: player, SessionToken: token})
}

func (h *HTTPHandler) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	player, token, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		h.log.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, authResponse{PlayerID: player, SessionToken: token})
}

func (h *HTTPHandler) handleLogout(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error()})
		return
	}
	h.svc.Logout(c.Request.Context(), token)
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) handleMe(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error()})
		return
	}
	player, username, ok := h.svc.ResolveSession(c.Request.Context(), token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
		return
	}
	c.JSON(http.StatusOK, meResponse{PlayerID: player, Username: username})
}

func bearerToken(raw string) string {
	if !strings.HasPrefix(raw, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
}
