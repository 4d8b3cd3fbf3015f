package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atomreputation/atom/internal/config"
	"github.com/atomreputation/atom/internal/ingest"
	"github.com/atomreputation/atom/internal/obs"
	"github.com/atomreputation/atom/internal/registry"
	"github.com/atomreputation/atom/internal/store"
	"github.com/atomreputation/atom/pkg/atom"
)

// APIHandler holds every dependency the route handlers need. Nothing here
// performs engine computation itself — it parses requests, delegates to
// the registry/ingest queue/store, and shapes the response.
type APIHandler struct {
	registry *registry.Registry
	queue    *ingest.Queue
	store    *store.PostgresStore
	engine   *atom.Engine
	wsHub    *Hub
	metrics  *obs.Metrics
	log      *zap.Logger

	// pendingProposals holds staged config proposals between the propose
	// and commit calls, since *atom.ConfigProposal carries no ID of its
	// own (pkg/atom treats propose/commit lifetime as the host's problem).
	proposalsMu sync.Mutex
	proposals   map[uuid.UUID]*atom.ConfigProposal
}

// SetupRouter wires the full HTTP surface: CORS, public routes, bearer-token
// and rate-limited protected routes, the websocket stream, and /metrics.
func SetupRouter(cfg config.HTTPConfig, rateLimit config.RateLimitConfig, reg *registry.Registry, queue *ingest.Queue, dbStore *store.PostgresStore, engine *atom.Engine, wsHub *Hub, metrics *obs.Metrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(cfg.AllowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	h := &APIHandler{
		registry:  reg,
		queue:     queue,
		store:     dbStore,
		engine:    engine,
		wsHub:     wsHub,
		metrics:   metrics,
		log:       log,
		proposals: make(map[uuid.UUID]*atom.ConfigProposal),
	}

	pub := r.Group("/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/agents/:id", h.handleGetAgent)
		pub.GET("/agents/:id/history", h.handleGetAgentHistory)
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	protected := r.Group("/v1")
	protected.Use(AuthMiddleware(cfg.AuthToken, log))
	protected.Use(NewRateLimiter(rateLimit.RequestsPerMinute, rateLimit.Burst).Middleware())
	{
		protected.POST("/agents/:id/feedback", h.handleSubmitFeedback)
		protected.POST("/config/propose", h.handleProposeConfig)
		protected.POST("/config/commit", h.handleCommitConfig)
	}

	return r
}

func parseAgentID(hexStr string) (atom.AgentID, error) {
	var id atom.AgentID
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != len(id) {
		return id, errInvalidID
	}
	copy(id[:], raw)
	return id, nil
}

var errInvalidID = &invalidIDError{}

type invalidIDError struct{}

func (*invalidIDError) Error() string { return "id must be 64 hex characters (32 bytes)" }

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "operational",
		"trackedAgents": h.registry.Len(),
		"dbConnected":   h.store != nil,
	})
}

func (h *APIHandler) handleGetAgent(c *gin.Context) {
	agent, err := parseAgentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats, ok := h.registry.Get(agent)
	if !ok && h.store != nil {
		loaded, found, err := h.store.LoadSnapshot(c.Request.Context(), agent)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load agent", "details": err.Error()})
			return
		}
		stats, ok = loaded, found
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent has no recorded feedback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agentId":       agent.String(),
		"feedbackCount": stats.FeedbackCount,
		"negCount":      stats.NegCount,
		"trustTier":     stats.TrustTier.String(),
		"qualityScore":  stats.QualityScore,
		"riskScore":     stats.RiskScore,
		"confidence":    stats.Confidence,
		"diversityRatio": stats.DiversityRatio,
		"loyaltyScore":  stats.LoyaltyScore,
	})
}

func (h *APIHandler) handleGetAgentHistory(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not connected"})
		return
	}
	agent, err := parseAgentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	changes, err := h.store.RecentTierChanges(c.Request.Context(), agent, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agentId": agent.String(), "history": changes})
}

// submitFeedbackRequest is the wire shape for POST /v1/agents/:id/feedback.
// CallerHash and Slot are supplied by the caller rather than derived here:
// identity hashing and logical clock assignment are the submitter's
// responsibility, per pkg/atom's own stance that it never sees raw caller
// identity.
type submitFeedbackRequest struct {
	CallerHash string `json:"callerHash"`
	Score      uint8  `json:"score"`
	Slot       uint64 `json:"slot"`
}

func (h *APIHandler) handleSubmitFeedback(c *gin.Context) {
	agent, err := parseAgentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var caller atom.CallerHash
	raw, err := hex.DecodeString(req.CallerHash)
	if err != nil || len(raw) != len(caller) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "callerHash must be 64 hex characters (32 bytes)"})
		return
	}
	copy(caller[:], raw)

	event := atom.FeedbackEvent{
		AgentID:    agent,
		CallerHash: caller,
		Score:      req.Score,
		Slot:       atom.Slot(req.Slot),
	}

	change, _, err := h.queue.Submit(c.Request.Context(), event)
	if err != nil {
		if err == ingest.ErrQueueFull {
			h.metrics.QueueFullTotal.Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "submission queue is full, retry shortly"})
			return
		}
		h.metrics.FeedbackRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.metrics.FeedbackSubmittedTotal.Inc()
	if change.Bumped() {
		h.metrics.TierTransitionsTotal.WithLabelValues(change.Before.String(), change.After.String()).Inc()
	}

	c.JSON(http.StatusOK, gin.H{
		"agentId":       agent.String(),
		"before":        change.Before.String(),
		"after":         change.After.String(),
		"bumped":        change.Bumped(),
		"qualityScore":  change.Quality,
		"riskScore":     change.Risk,
		"confidence":    change.Confidence,
		"feedbackCount": change.FeedbackCount,
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, atom.ErrInvalidScore):
		return "invalid_score"
	case errors.Is(err, atom.ErrSlotRegression):
		return "slot_regression"
	case errors.Is(err, atom.ErrPaused):
		return "paused"
	case errors.Is(err, atom.ErrConfigInvalid):
		return "config_invalid"
	default:
		return "other"
	}
}

type proposeConfigRequest struct {
	ProposerID string      `json:"proposerId"`
	Config     atom.Config `json:"config"`
}

// handleProposeConfig stages a new Config and hands the caller a proposal
// ID to commit with later. The staged *atom.ConfigProposal itself has no
// identity of its own — pkg/atom leaves propose/commit lifetime management
// to the host — so this handler is where that bookkeeping actually lives.
func (h *APIHandler) handleProposeConfig(c *gin.Context) {
	var req proposeConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	proposer, err := parseAgentID(req.ProposerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	proposal, err := atom.Propose(h.engine.Config(), proposer, req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.New()
	h.proposalsMu.Lock()
	h.proposals[id] = proposal
	h.proposalsMu.Unlock()

	c.JSON(http.StatusOK, gin.H{"proposalId": id.String()})
}

type commitConfigRequest struct {
	ProposalID  string `json:"proposalId"`
	CommitterID string `json:"committerId"`
}

func (h *APIHandler) handleCommitConfig(c *gin.Context) {
	var req commitConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	proposalID, err := uuid.Parse(req.ProposalID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposalId"})
		return
	}
	committer, err := parseAgentID(req.CommitterID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.proposalsMu.Lock()
	proposal, ok := h.proposals[proposalID]
	if ok {
		delete(h.proposals, proposalID)
	}
	h.proposalsMu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such proposal, or it was already committed"})
		return
	}

	next, err := proposal.Commit(committer)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.engine.InstallConfig(next)
	c.JSON(http.StatusOK, gin.H{"status": "committed"})
}
