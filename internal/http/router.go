package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appconfig "github.com/saker-ai/speech-uplink/internal/config"
	"github.com/saker-ai/speech-uplink/internal/metrics"
	"github.com/saker-ai/speech-uplink/internal/session"
	"github.com/saker-ai/speech-uplink/internal/storage"
	"github.com/saker-ai/speech-uplink/internal/ws"
)

// Deps groups what the router serves. Store and Metrics may be nil.
type Deps struct {
	Config    appconfig.Config
	WSHandler *ws.Handler
	Registry  *session.Registry
	Store     *storage.Store
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// NewRouter builds the HTTP surface: health, the capture websocket, metrics and read-only inspection endpoints.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger, deps.Metrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/capture-ws", func(c *gin.Context) {
		deps.WSHandler.Handle(c.Writer, c.Request)
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": deps.Registry.Snapshot()})
	})

	router.GET("/profiles", func(c *gin.Context) {
		profiles, err := appconfig.ScanProfiles(deps.Config.ProfilesDir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"profiles": profiles})
	})

	mountRecordings(router, deps.Store)
	return router
}

func mountRecordings(router *gin.Engine, store *storage.Store) {
	if store == nil {
		router.GET("/recordings", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"recordings": []storage.RecordingInfo{}})
		})
		return
	}

	router.GET("/recordings", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"recordings": store.List()})
	})

	router.GET("/recordings/:id", func(c *gin.Context) {
		id := c.Param("id")
		path, err := store.Path(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !fileExists(path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recording not found"})
			return
		}
		c.FileAttachment(path, id+".wav")
	})

	router.DELETE("/recordings/:id", func(c *gin.Context) {
		if !store.Delete(c.Param("id")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recording not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func requestLogger(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), latency)

		if logger == nil {
			return
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", latency),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}
