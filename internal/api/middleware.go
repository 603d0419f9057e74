package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/safar/arun-store/internal/auth"
	"github.com/safar/arun-store/internal/models"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxLogger = "logger"
	ctxActor  = "actor"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)
)

func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := routePath(c)
		httpRequests.WithLabelValues(c.Request.Method, path, http.StatusText(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// RequestLogger tags the request with an id and logs one line when it completes.
// Handlers fetch the tagged logger with loggerFrom.
func RequestLogger(base logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		log := base.WithFields(logrus.Fields{
			"req_id": reqID,
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"remote": c.ClientIP(),
		})
		c.Set(ctxLogger, log)

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"status": status,
			"dur_ms": time.Since(start).Milliseconds(),
			"bytes":  c.Writer.Size(),
		})
		if actor, ok := actorFrom(c); ok {
			entry = entry.WithField("user_id", actor.UserID)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("http_request")
		case status >= http.StatusBadRequest:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}
	}
}

func loggerFrom(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(ctxLogger); ok {
		if log, ok := v.(logrus.FieldLogger); ok {
			return log
		}
	}
	return logrus.StandardLogger()
}

func unauth(c *gin.Context, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	abortWithCode(c, http.StatusUnauthorized, "unauthorized")
}

func forbidden(c *gin.Context) {
	abortWithCode(c, http.StatusForbidden, "forbidden")
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func parseActor(tokens *auth.TokenManager, raw string) (models.Actor, error) {
	claims, err := tokens.Parse(raw)
	if err != nil {
		return models.Actor{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return models.Actor{}, err
	}
	return models.Actor{UserID: id, Staff: claims.Staff}, nil
}

// Authenticate requires a valid bearer token and stores the caller as the actor.
func Authenticate(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			unauth(c, "missing bearer token")
			return
		}

		actor, err := parseActor(tokens, raw)
		if err != nil {
			_ = c.Error(err)
			unauth(c, "token rejected")
			return
		}

		c.Set(ctxActor, actor)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a token is present and lets anonymous
// requests through.
func OptionalAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		actor, err := parseActor(tokens, raw)
		if err != nil {
			_ = c.Error(err)
			unauth(c, "token rejected")
			return
		}

		c.Set(ctxActor, actor)
		c.Next()
	}
}

func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			unauth(c, "missing bearer token")
			return
		}
		if !actor.Staff {
			forbidden(c)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(ctxActor)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// mustActor is for handlers behind Authenticate.
func mustActor(c *gin.Context) models.Actor {
	actor, _ := actorFrom(c)
	return actor
}
