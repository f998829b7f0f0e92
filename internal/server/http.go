package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/document-processor/internal/common"
)

const defaultCleanupMinutes = 30

type HTTPHandler struct {
	svc    DocumentService
	store  Pinger
	logger *slog.Logger
}

func NewHTTPHandler(svc DocumentService, store Pinger, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{svc: svc, store: store, logger: logger}
}

// NewRouter builds a gin engine with recovery, request logging and the
// document routes.
func NewRouter(h *HTTPHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	h.RegisterRoutes(router)
	return router
}

func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)
	router.GET("/health/live", h.live)
	router.GET("/health/ready", h.health)

	docs := router.Group("/documents")
	docs.GET("/:id", h.getDocument)
	docs.DELETE("/:id", h.deleteDocument)
	docs.POST("/:id/queue", h.queueDocument)
	docs.POST("/:id/resubmit", h.resubmitDocument)

	admin := router.Group("/admin")
	admin.GET("/cleanup-stuck-documents", h.cleanupStuck)
	admin.POST("/cleanup-stuck-documents", h.cleanupStuck)
	admin.POST("/recover-stranded", h.recoverStranded)
}

func (h *HTTPHandler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, reqID := common.EnsureRequestID(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", reqID)
		start := time.Now()
		c.Next()
		h.logger.Debug("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"request_id", reqID,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (h *HTTPHandler) live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *HTTPHandler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("http.health.store_unreachable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "document store unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *HTTPHandler) getDocument(c *gin.Context) {
	id, err := parseDocumentID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	doc, err := h.svc.GetDocument(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentFields(doc))
}

func (h *HTTPHandler) deleteDocument(c *gin.Context) {
	id, err := parseDocumentID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.svc.DeleteDocument(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) queueDocument(c *gin.Context) {
	id, err := parseDocumentID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.svc.QueueDocumentForProcessing(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document_id": id.String(), "message": "document queued for processing"})
}

func (h *HTTPHandler) resubmitDocument(c *gin.Context) {
	id, err := parseDocumentID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.svc.ResubmitDocument(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document_id": id.String(), "message": "document resubmitted"})
}

func (h *HTTPHandler) cleanupStuck(c *gin.Context) {
	minutes := defaultCleanupMinutes
	if raw := c.Query("timeoutMinutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil {
			err = common.NewValidator().Field("timeoutMinutes", n, common.Positive).Err()
		} else {
			err = common.NewValidator().Field("timeoutMinutes", raw, common.Positive).Err()
		}
		if err != nil {
			h.writeError(c, err)
			return
		}
		minutes = n
	}
	n, err := h.svc.CleanupStuckDocuments(c.Request.Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         "stuck documents cleanup completed",
		"reclaimed":       n,
		"timeout_minutes": minutes,
	})
}

func (h *HTTPHandler) recoverStranded(c *gin.Context) {
	n, err := h.svc.RecoverStranded(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recovered": n})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	code, msg := httpStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("http.request.failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": msg})
}
