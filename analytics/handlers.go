package analytics

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler exposes the analytics proxy over HTTP. All routes are expected to
// be mounted behind an admin gate by the caller.
type Handler struct {
	client *Client
	cache  *reportCache
	logger *zap.Logger
}

// NewHandler creates an analytics handler. A nil client means the proxy is
// not configured; every endpoint then reports 503.
func NewHandler(client *Client, cacheTTL time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		client: client,
		cache:  newReportCache(cacheTTL),
		logger: logger,
	}
}

// RegisterRoutes mounts the analytics routes on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/data", h.Data)
	g.GET("/realtime", h.Realtime)
	g.GET("/health", h.Health)
}

// Data returns the aggregate 30-day overview, cached for the handler's TTL.
func (h *Handler) Data(c echo.Context) error {
	if h.client == nil {
		return h.notConfigured(c)
	}
	if overview, ok := h.cache.get(); ok {
		return c.JSON(http.StatusOK, overview)
	}
	overview, err := h.client.Overview(c.Request().Context())
	if err != nil {
		h.logger.Error("analytics overview failed", zap.Error(err))
		if errors.Is(err, ErrUpstream) {
			return c.JSON(http.StatusBadGateway, echo.Map{
				"error":   "Failed to fetch data from Google Analytics Data API",
				"details": err.Error(),
			})
		}
		return err
	}
	h.cache.set(overview)
	return c.JSON(http.StatusOK, overview)
}

// Realtime returns the synthesized realtime snapshot.
func (h *Handler) Realtime(c echo.Context) error {
	if h.client == nil {
		return h.notConfigured(c)
	}
	return c.JSON(http.StatusOK, h.client.Realtime())
}

// Health reports whether the proxy can serve queries.
func (h *Handler) Health(c echo.Context) error {
	if h.client == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":    "unconfigured",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":    "OK",
		"property":  h.client.propertyID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) notConfigured(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, echo.Map{
		"error": "Google Analytics not configured properly. Please check GA_PROPERTY_ID and credentials.",
	})
}
