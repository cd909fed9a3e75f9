package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pokerdice/match"
)

type HTTPHandler struct {
	service Service
}

func NewHTTPHandler(service Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// RegisterRoutes exposes balances read-only. Money moves only through match
// settlement and the starting-balance grant.
func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	players := r.Group("/players/:player")
	players.GET("/balance", h.handleBalance)
	players.GET("/entries", h.handleEntries)
}

func (h *HTTPHandler) handleBalance(c *gin.Context) {
	player, ok := playerParam(c)
	if !ok {
		return
	}
	bal, err := h.service.Balance(c.Request.Context(), player)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"player_id": player, "balance": bal})
}

func (h *HTTPHandler) handleEntries(c *gin.Context) {
	player, ok := playerParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.service.Entries(c.Request.Context(), player, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

func playerParam(c *gin.Context) (match.PlayerID, bool) {
	id, err := strconv.ParseUint(c.Param("player"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return 0, false
	}
	return match.PlayerID(id), true
}
