package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"imdb-proxy/internal/metrics"
	"imdb-proxy/internal/model"
	"imdb-proxy/internal/report"
	"imdb-proxy/internal/service"
)

const (
	msgMissingQuery = `Query parameter "q" is required`
	msgFetchFailed  = "Failed to fetch data"

	cacheControl = "s-maxage=3600, stale-while-revalidate"
)

// SuggestionHandler forwards title-suggestion queries to IMDb.
type SuggestionHandler struct {
	service  *service.SuggestionService
	metrics  *metrics.Metrics
	reporter report.Reporter
	logger   *slog.Logger
}

// NewSuggestionHandler creates a SuggestionHandler.
// The metrics parameter is optional; pass nil to disable failure counting.
func NewSuggestionHandler(svc *service.SuggestionService, m *metrics.Metrics, r report.Reporter, logger *slog.Logger) *SuggestionHandler {
	if r == nil {
		r = report.Nop{}
	}
	return &SuggestionHandler{
		service:  svc,
		metrics:  m,
		reporter: r,
		logger:   logger.With("component", "suggestion_handler"),
	}
}

// Handle forwards the q parameter upstream and relays the JSON reply.
// CORS headers and preflight replies are handled by middleware.CORS.
func (h *SuggestionHandler) Handle(c echo.Context) error {
	req := c.Request()

	in := &model.InboundRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Query:  c.QueryParams(),
	}

	body, err := h.service.Forward(in)
	if err != nil {
		if errors.Is(err, service.ErrMissingQuery) {
			return c.JSON(http.StatusBadRequest, model.ErrorBody{Error: msgMissingQuery})
		}
		return h.fail(c, in, err)
	}

	c.Response().Header().Set("Cache-Control", cacheControl)
	return c.JSONBlob(http.StatusOK, body)
}

// fail is the single boundary for every forwarding failure. All kinds map to
// the same 500 reply; only details differ.
func (h *SuggestionHandler) fail(c echo.Context, in *model.InboundRequest, err error) error {
	kind := failureKind(err)

	h.logger.Error("proxy error",
		"err", err,
		"kind", kind,
		"q", in.Query.Get("q"),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	)

	if h.metrics != nil {
		h.metrics.UpstreamFailures.WithLabelValues(kind).Inc()
	}
	h.reporter.Report(err, map[string]string{"kind": kind})

	return c.JSON(http.StatusInternalServerError, model.ErrorBody{
		Error:   msgFetchFailed,
		Details: err.Error(),
	})
}

func failureKind(err error) string {
	var statusErr *service.UpstreamStatusError
	var parseErr *service.ParseError
	switch {
	case errors.As(err, &statusErr):
		return "status"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "transport"
	}
}
