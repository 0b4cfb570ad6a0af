package server

import (
	"net/http"
	"slices"
	"sync"
	"time"
	"unicode"

	"github.com/BUNny0021/PDF-Ofice/internal/metrics"
	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxRequestIDLength = 128

// requestID accepts a sane client supplied X-Request-ID or assigns a new one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(pipeline.RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(pipeline.RequestIDKey, id)
		c.Header(pipeline.RequestIDHeader, id)
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || r == ' ' {
			return false
		}
	}
	return true
}

// requestLogger writes one entry per request once the response is complete
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	quiet := map[string]bool{"/healthz": true, "/metrics": true}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency":    time.Since(start).Round(time.Millisecond).String(),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(pipeline.RequestIDKey),
			"bytes":      c.Writer.Size(),
		})

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		case quiet[path]:
			entry.Debug("Request handled")
		default:
			entry.Info("Request handled")
		}
	}
}

// recovery answers panics outside the pipeline with the JSON error body
func recovery(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		requestID := c.GetString(pipeline.RequestIDKey)
		logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"panic":      recovered,
		}).Error("Recovered from panic in HTTP handler")

		c.AbortWithStatusJSON(http.StatusInternalServerError, pipeline.ErrorResponse{
			Message:   "Internal server error.",
			RequestID: requestID,
		})
	})
}

// corsMiddleware allows the configured origins; "*" allows any origin
func corsMiddleware(origins []string) gin.HandlerFunc {
	conf := cors.DefaultConfig()
	if slices.Contains(origins, "*") {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	conf.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	conf.AllowHeaders = []string{"Origin", "Content-Type", "Content-Length", pipeline.RequestIDHeader}
	conf.ExposeHeaders = []string{"Content-Disposition", pipeline.RequestIDHeader}
	conf.MaxAge = 12 * time.Hour
	return cors.New(conf)
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client address
type rateLimiter struct {
	mu              sync.Mutex
	limit           rate.Limit
	burst           int
	entries         map[string]*rateLimitEntry
	entryTTL        time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limit:           rate.Limit(perSecond),
		burst:           burst,
		entries:         make(map[string]*rateLimitEntry),
		entryTTL:        15 * time.Minute,
		cleanupInterval: 5 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

func (r *rateLimiter) allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastCleanup) >= r.cleanupInterval {
		for k, entry := range r.entries {
			if now.Sub(entry.lastSeen) > r.entryTTL {
				delete(r.entries, k)
			}
		}
		r.lastCleanup = now
	}

	entry, ok := r.entries[key]
	if !ok {
		entry = &rateLimitEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// rateLimit rejects clients exceeding perSecond requests with 429. A non-positive rate disables it.
func rateLimit(perSecond float64, burst int, m *metrics.Metrics) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := newRateLimiter(perSecond, burst)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			m.IncRateLimited()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, pipeline.ErrorResponse{
				Message:   "Too many requests, please slow down.",
				RequestID: c.GetString(pipeline.RequestIDKey),
			})
			return
		}
		c.Next()
	}
}
