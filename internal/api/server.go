package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

const genericQueryError = "An error occurred while processing your query"

// Answerer answers a free-text question from stored articles.
type Answerer interface {
	Answer(ctx context.Context, question string) (domain.Answer, error)
}

type queryRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the query, health and metrics endpoints.
type Server struct {
	echo *echo.Echo
	addr string
	log  logger.Logger
}

// NewServer creates and configures the Echo HTTP server.
func NewServer(addr string, answerer Answerer, log logger.Logger) *Server {
	log = logger.Ensure(log)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.InfoObj("http request completed", "http_request", map[string]any{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := &handler{answerer: answerer, log: log}
	e.POST("/agent", h.agent)
	e.GET("/health", health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{echo: e, addr: addr, log: log}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("http server listening", "http_server", map[string]any{"addr": s.addr})
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

type handler struct {
	answerer Answerer
	log      logger.Logger
}

func (h *handler) agent(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: genericQueryError})
	}

	answer, err := h.answerer.Answer(c.Request().Context(), req.Query)
	if err != nil {
		h.log.ErrorObj("query failed", "query_error", map[string]any{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: genericQueryError})
	}
	if answer.Sources == nil {
		answer.Sources = []domain.ArticleSource{}
	}
	return c.JSON(http.StatusOK, answer)
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
