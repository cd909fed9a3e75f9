package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pokerdice/apps/server/internal/lobby"
	"pokerdice/apps/server/internal/logger"
	"pokerdice/apps/server/internal/room"
	"pokerdice/match"
)

// PlayerHeader carries the acting player when no session auth is configured.
const PlayerHeader = "X-Player-ID"

var errNoPlayer = errors.New("missing or invalid " + PlayerHeader)

// Identifier resolves the player acting on a request.
type Identifier interface {
	Identify(c *gin.Context) (match.PlayerID, error)
}

// HeaderIdentity trusts PlayerHeader as set by an upstream proxy.
type HeaderIdentity struct{}

func (HeaderIdentity) Identify(c *gin.Context) (match.PlayerID, error) {
	id, err := strconv.ParseUint(c.GetHeader(PlayerHeader), 10, 64)
	if err != nil || id == 0 {
		return 0, errNoPlayer
	}
	return match.PlayerID(id), nil
}

type Handler struct {
	lobby    *lobby.Lobby
	identity Identifier
	log      *zap.Logger
}

func NewHandler(l *lobby.Lobby) *Handler {
	return &Handler{
		lobby:    l,
		identity: HeaderIdentity{},
		log:      logger.With(zap.String("component", "api")),
	}
}

// WithIdentity replaces the header lookup, e.g. with bearer sessions.
func (h *Handler) WithIdentity(id Identifier) *Handler {
	h.identity = id
	return h
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	matches := r.Group("/matches")
	matches.POST("", h.handleCreate)
	matches.GET("", h.handleList)
	matches.GET("/:id", h.handleSnapshot)
	matches.GET("/:id/scoreboard", h.handleScoreboard)
	matches.GET("/:id/standings", h.handleStandings)
	matches.POST("/:id/roll", h.handleRoll)
	matches.POST("/:id/hold", h.handleHold)
	matches.POST("/:id/finish", h.handleFinish)
	matches.POST("/:id/leave", h.handleLeave)
	matches.POST("/:id/advance", h.handleAdvance)
}

type createRequest struct {
	Players []match.PlayerID `json:"players"`
	Rounds  int              `json:"rounds"`
}

type diceRequest struct {
	Held []int `json:"held"`
}

// handleCreate charges every seated player, so the caller must be one of them.
func (h *Handler) handleCreate(c *gin.Context) {
	caller, err := h.identity.Identify(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !slices.Contains(req.Players, caller) {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller must be seated in the match"})
		return
	}
	id, snap, err := h.lobby.CreateMatch(c.Request.Context(), req.Players, req.Rounds)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"match_id": id, "match": snap})
}

func (h *Handler) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.lobby.ListMatches()})
}

func (h *Handler) handleSnapshot(c *gin.Context) {
	snap, err := h.lobby.Snapshot(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleScoreboard serves ?scope=round (default) or ?scope=match, with an
// optional ?top=N.
func (h *Handler) handleScoreboard(c *gin.Context) {
	snap, err := h.lobby.Snapshot(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var board *match.Scoreboard
	switch c.DefaultQuery("scope", "round") {
	case "round":
		cur := snap.CurrentRound()
		if cur == nil {
			board = match.NewScoreboard()
		} else {
			board = match.RoundScoreboard(cur)
		}
	case "match":
		board = match.MatchScoreboard(snap)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be round or match"})
		return
	}
	entries := board.Entries()
	if raw := c.Query("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid top"})
			return
		}
		entries = board.TopN(n)
	}
	round := 0
	if cur := snap.CurrentRound(); cur != nil {
		round = cur.Number
	}
	c.JSON(http.StatusOK, gin.H{"match_id": snap.ID, "round": round, "items": entries})
}

func (h *Handler) handleStandings(c *gin.Context) {
	snap, err := h.lobby.Snapshot(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_id": snap.ID, "items": match.Standings(snap)})
}

func (h *Handler) handleRoll(c *gin.Context) {
	h.playerAction(c, true, func(ctx context.Context, r *room.Room, p match.PlayerID, held []int) error {
		return r.Roll(ctx, p, held)
	})
}

func (h *Handler) handleHold(c *gin.Context) {
	h.playerAction(c, true, func(ctx context.Context, r *room.Room, p match.PlayerID, held []int) error {
		return r.Hold(ctx, p, held)
	})
}

func (h *Handler) handleFinish(c *gin.Context) {
	h.playerAction(c, false, func(ctx context.Context, r *room.Room, p match.PlayerID, _ []int) error {
		return r.Finish(ctx, p)
	})
}

func (h *Handler) handleLeave(c *gin.Context) {
	h.playerAction(c, false, func(ctx context.Context, r *room.Room, p match.PlayerID, _ []int) error {
		return r.Leave(ctx, p)
	})
}

func (h *Handler) handleAdvance(c *gin.Context) {
	r, err := h.lobby.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := r.Advance(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r.Snapshot())
}

type actionFunc func(ctx context.Context, r *room.Room, p match.PlayerID, held []int) error

// playerAction resolves the room and acting player, applies fn and answers
// with the resulting snapshot.
func (h *Handler) playerAction(c *gin.Context, withDice bool, fn actionFunc) {
	player, err := h.identity.Identify(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	var req diceRequest
	if withDice && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	r, err := h.lobby.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := fn(c.Request.Context(), r, player, req.Held); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r.Snapshot())
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed",
			zap.String("path", c.FullPath()),
			zap.String("match_id", c.Param("id")),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps engine errors to HTTP status codes.
func StatusFor(err error) int {
	var ise match.InvalidStateError
	switch {
	case errors.Is(err, match.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrNotYourTurn),
		errors.Is(err, match.ErrTurnAlreadyFinished),
		errors.Is(err, match.ErrRollLimitExceeded),
		errors.As(err, &ise):
		return http.StatusConflict
	case errors.Is(err, match.ErrMatchFinished), errors.Is(err, room.ErrRoomClosed):
		return http.StatusGone
	case errors.Is(err, match.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, match.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, match.ErrSettlementFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
