package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	app_service "address-intelligence/internal/application/service"
	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/infrastructure/config"
	"address-intelligence/internal/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves the REST surface over the application services
type Handler struct {
	intelligence *app_service.IntelligenceService
	bridge       *app_service.BridgeService
	groups       *app_service.GroupAnalysisService
	logger       *logger.Logger
}

type transactionsRequest struct {
	Transactions []entity.TransactionData `json:"transactions"`
}

type connectRequest struct {
	Peers []string `json:"peers" binding:"required"`
}

type campaignRequest struct {
	Addresses    []string `json:"addresses" binding:"required"`
	CampaignType string   `json:"campaign_type"`
}

type bulkRequest struct {
	Addresses []string `json:"addresses" binding:"required"`
}

type analyzeRequest struct {
	Filter       entity.GroupAnalysisFilter `json:"filter"`
	AnalysisName string                     `json:"analysis_name"`
	RequestedBy  string                     `json:"requested_by"`
}

// NewRouter builds the gin engine with every route registered
func NewRouter(
	intelligence *app_service.IntelligenceService,
	bridge *app_service.BridgeService,
	groups *app_service.GroupAnalysisService,
	hub *Hub,
	cfg *config.HTTPConfig,
	logger *logger.Logger,
) *gin.Engine {
	h := &Handler{
		intelligence: intelligence,
		bridge:       bridge,
		groups:       groups,
		logger:       logger.WithComponent("api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger(), corsMiddleware(cfg.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/messages", h.handleMessage)

		v1.GET("/addresses/top", h.handleTop)
		v1.POST("/addresses/bulk", h.handleBulk)
		v1.GET("/addresses/:address", h.handleGetProfile)
		v1.PATCH("/addresses/:address", h.handleUpsert)
		v1.POST("/addresses/:address/events", h.handleIngest)
		v1.POST("/addresses/:address/transactions", h.handleTransactions)
		v1.POST("/addresses/:address/business", h.handleBusinessContext)
		v1.POST("/addresses/:address/connections", h.handleConnect)
		v1.GET("/addresses/:address/contact-time", h.handleContactTime)
		v1.GET("/addresses/:address/message", h.handlePersonalizedMessage)

		v1.GET("/segments/:segment", h.handleSegment)
		v1.GET("/report", h.handleReport)
		v1.POST("/campaigns/optimize", h.handleOptimizeCampaign)

		v1.POST("/cohorts/analyze", h.handleAnalyze)
		v1.POST("/cohorts/preview", h.handlePreview)
		v1.GET("/cohorts/templates", h.handleTemplates)

		v1.GET("/stream", hub.Subscribe)
	}

	return r
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, a := range allowed {
			if a == "*" {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				break
			}
			if a == origin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("Handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// writeError maps domain errors onto status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entity.ErrEmptyCohort):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrMalformedAddress),
		errors.Is(err, entity.ErrInvalidFilter),
		errors.Is(err, entity.ErrInvalidPatch),
		errors.Is(err, entity.ErrInvalidEvent):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *Handler) handleMessage(c *gin.Context) {
	var msg entity.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		badRequest(c, err)
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Channel == "" {
		msg.Channel = entity.ChannelSMS
	}
	if !msg.Channel.IsValid() {
		h.writeError(c, fmt.Errorf("%w: channel %q", entity.ErrInvalidEvent, msg.Channel))
		return
	}
	c.JSON(http.StatusAccepted, h.bridge.HandleMessage(c.Request.Context(), &msg))
}

func (h *Handler) handleIngest(c *gin.Context) {
	var in app_service.CommunicationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.intelligence.Ingest(c.Request.Context(), c.Param("address"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) handleTransactions(c *gin.Context) {
	var req transactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.intelligence.IngestTransactions(c.Request.Context(), c.Param("address"), req.Transactions)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) handleBusinessContext(c *gin.Context) {
	var bc entity.BusinessContext
	if err := c.ShouldBindJSON(&bc); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.intelligence.CaptureBusinessContext(c.Request.Context(), c.Param("address"), bc)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) handleConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.intelligence.Connect(c.Request.Context(), c.Param("address"), req.Peers...)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) handleUpsert(c *gin.Context) {
	var patch app_service.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.intelligence.Upsert(c.Request.Context(), c.Param("address"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) handleGetProfile(c *gin.Context) {
	p, err := h.intelligence.GetProfile(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "address not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) handleTop(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	profiles, err := h.intelligence.TopByValue(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles, "count": len(profiles)})
}

func (h *Handler) handleSegment(c *gin.Context) {
	profiles, err := h.intelligence.BySegment(c.Request.Context(), c.Param("segment"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles, "count": len(profiles)})
}

func (h *Handler) handleContactTime(c *gin.Context) {
	t, err := h.intelligence.OptimalContactTime(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": c.Param("address"), "optimal_contact_time": t})
}

func (h *Handler) handlePersonalizedMessage(c *gin.Context) {
	mt, ok := entity.ParseMessageType(c.DefaultQuery("type", entity.MessageWelcome.String()))
	if !ok {
		badRequest(c, errors.New("unknown message type"))
		return
	}
	msg, err := h.intelligence.PersonalizedMessage(c.Request.Context(), c.Param("address"), mt)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": c.Param("address"), "message": msg})
}

func (h *Handler) handleReport(c *gin.Context) {
	report, err := h.bridge.Report(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) handleOptimizeCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	plan, err := h.bridge.OptimizeCampaign(c.Request.Context(), req.Addresses, req.CampaignType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *Handler) handleBulk(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	results, err := h.bridge.BulkAnalyze(c.Request.Context(), req.Addresses)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (h *Handler) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.groups.Analyze(c.Request.Context(), req.Filter, req.AnalysisName, req.RequestedBy)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) handlePreview(c *gin.Context) {
	var filter entity.GroupAnalysisFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		badRequest(c, err)
		return
	}
	preview, err := h.groups.Preview(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *Handler) handleTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": h.groups.Templates()})
}
