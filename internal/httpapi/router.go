// Package httpapi exposes the classification engine and verdict parser over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reviewbot/internal/qa"
	"reviewbot/internal/review"
)

const (
	requestIDHeader = "X-Request-Id"
	maxBodyBytes    = 4 << 20
)

// Pinger reports whether the state database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	Policy qa.Policy
	DB     Pinger
	Logger *zap.Logger
}

func Router(h *Handler) *gin.Engine {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(h.Logger))

	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	{
		v1.POST("/classify", h.Classify)
		v1.POST("/segments", h.Segments)
		v1.POST("/verdict", h.Verdict)
	}
	return r
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type classifyResponse struct {
	qa.Result
	Trace *qa.Trace `json:"trace,omitempty"`
}

// Classify runs the engine over a ticket payload. Add ?trace=1 to include
// the classification trace.
func (h *Handler) Classify(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	result, trace := qa.ClassifyJSON(body, h.Policy)
	resp := classifyResponse{Result: result}
	if c.Query("trace") == "1" {
		resp.Trace = &trace
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Segments(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	segments := qa.Segments{Status: qa.StatusIncomplete}
	if tickets := qa.DecodeTickets(body); len(tickets) > 0 {
		segments = qa.ExtractSegments(tickets[0], h.Policy)
	}
	c.JSON(http.StatusOK, segments)
}

type verdictRequest struct {
	Text string `json:"text"`
}

// Verdict parses judgment text sent either as {"text": "..."} or as a plain body.
func (h *Handler) Verdict(c *gin.Context) {
	var text string
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req verdictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
		text = req.Text
	} else {
		body, ok := readBody(c)
		if !ok {
			return
		}
		text = string(body)
	}
	c.JSON(http.StatusOK, review.Parse(text))
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error())
		} else {
			writeError(c, http.StatusBadRequest, "UNREADABLE_BODY", err.Error())
		}
		return nil, false
	}
	return body, true
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDHeader, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		l.Info("request",
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Serve runs an HTTP server for handler until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	log.Info("http server stopped")
	return nil
}
