package middleware

import (
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are headers that should not be forwarded by proxies.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// securityHeaders are added to every response before the handler runs, so
// they survive handlers that commit the response themselves.
var securityHeaders = []struct{ Key, Value string }{
	{echo.HeaderXContentTypeOptions, "nosniff"},
	{echo.HeaderXFrameOptions, "DENY"},
	{echo.HeaderReferrerPolicy, "no-referrer"},
}

// SecurityHeaders returns an Echo middleware that adds security headers
// and strips hop-by-hop headers from the inbound request.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHopHeaders {
				c.Request().Header.Del(h)
			}

			res := c.Response().Header()
			for _, kv := range securityHeaders {
				res.Set(kv.Key, kv.Value)
			}

			return next(c)
		}
	}
}
