// Package handler contains the Echo handlers and route table.
package handler

import (
	"github.com/labstack/echo/v4"
)

// SuggestionPath is the single proxy endpoint.
const SuggestionPath = "/api/proxy"

// RegisterRoutes wires all route handlers onto the Echo instance.
// The proxy endpoint accepts any method, as the hosting runtime did. CORS is
// applied globally by middleware.CORS(SuggestionPath), so OPTIONS never
// reaches the handler.
func RegisterRoutes(e *echo.Echo, suggestions *SuggestionHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.Any(SuggestionPath, suggestions.Handle)
}
