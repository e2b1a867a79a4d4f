package ops

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"offermart/internal/config"
	"offermart/internal/dedup"
	"offermart/internal/logger"
	"offermart/internal/validation"
	"offermart/pkg/errors"
	"offermart/pkg/health"
	"offermart/pkg/middleware"
	"offermart/pkg/ratelimit"
)

// Handler serves the operational surface of the engine: health,
// metrics and read/write access to the active rule configuration.
type Handler struct {
	validation *validation.Service
	dedup      *dedup.Service
	registry   *health.CheckerRegistry
	logger     logger.Logger
}

func NewHandler(validationSvc *validation.Service, dedupSvc *dedup.Service, registry *health.CheckerRegistry, log logger.Logger) *Handler {
	return &Handler{
		validation: validationSvc,
		dedup:      dedupSvc,
		registry:   registry,
		logger:     log,
	}
}

// NewRouter builds the gin engine with the standard middleware chain.
func NewRouter(cfg config.OpsConfig, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))

	if cfg.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             cfg.RateLimit.RPS,
			Burst:           cfg.RateLimit.Burst,
			CleanupInterval: time.Duration(cfg.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(cfg.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		log.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	return router
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.getHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/validation/rules", h.getValidationRules)
		api.POST("/validation/rules/reload", h.reloadValidationRules)
		api.GET("/dedup/policy", h.getDedupPolicy)
		api.PUT("/dedup/policy", h.updateDedupPolicy)
	}
}

func (h *Handler) getHealth(c *gin.Context) {
	result := h.registry.Check(c.Request.Context())
	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, result)
}

func (h *Handler) getValidationRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rules": h.validation.LoadedRules(),
	})
}

func (h *Handler) reloadValidationRules(c *gin.Context) {
	if err := h.validation.ReloadRules(c.Request.Context()); err != nil {
		h.logger.Errorw("Manual rule reload failed", "error", err)
		appErr := errors.ErrInternal.WithCause(err).WithDetail("message", "failed to reload rules")
		c.JSON(errors.ToHTTPStatus(appErr), errors.ToErrorResponse(appErr))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rules": h.validation.LoadedRules(),
	})
}

func (h *Handler) getDedupPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tie_break": h.dedup.TieBreak(),
	})
}

type updatePolicyRequest struct {
	TieBreak string `json:"tie_break" binding:"required"`
}

func (h *Handler) updateDedupPolicy(c *gin.Context) {
	var req updatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.ErrValidation.WithCause(err).WithDetail("message", err.Error())
		c.JSON(errors.ToHTTPStatus(appErr), errors.ToErrorResponse(appErr))
		return
	}

	if err := h.dedup.UpdateTieBreak(req.TieBreak); err != nil {
		appErr := errors.ErrValidation.WithCause(err).
			WithDetail("message", err.Error()).
			WithDetail("tie_break", req.TieBreak)
		c.JSON(errors.ToHTTPStatus(appErr), errors.ToErrorResponse(appErr))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tie_break": h.dedup.TieBreak(),
	})
}
