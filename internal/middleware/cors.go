package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// corsHeaders are set on every reply, including errors and preflights.
var corsHeaders = []struct{ Key, Value string }{
	{echo.HeaderAccessControlAllowOrigin, "*"},
	{echo.HeaderAccessControlAllowMethods, "GET, OPTIONS"},
	{echo.HeaderAccessControlAllowHeaders, "Content-Type"},
}

// CORS returns an Echo middleware that allows any origin and answers OPTIONS
// preflights itself with 200 and an empty body. It applies to the given route
// paths, or to every route when none are given.
//
// Register it with e.Use ahead of any middleware that can reply on its own
// (body limit, security headers) so those replies carry the headers too.
// Echo's stock CORS middleware only reacts to requests carrying an Origin
// header and answers preflights with 204, so it is not used here.
func CORS(paths ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !matchRoute(c, paths) {
				return next(c)
			}

			h := c.Response().Header()
			for _, kv := range corsHeaders {
				h.Set(kv.Key, kv.Value)
			}

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

// PreflightSkipper reports OPTIONS requests to the given route paths. Use it
// to keep middleware that adds headers (request IDs) off preflight replies,
// which carry the CORS headers only.
func PreflightSkipper(paths ...string) echomw.Skipper {
	return func(c echo.Context) bool {
		return c.Request().Method == http.MethodOptions && matchRoute(c, paths)
	}
}

// matchRoute compares the matched route, not the raw URL path.
func matchRoute(c echo.Context, paths []string) bool {
	return len(paths) == 0 || slices.Contains(paths, c.Path())
}
