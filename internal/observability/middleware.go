package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UnmatchedRoute labels requests no route matched. Raw paths carry ids and
// never become label values.
const UnmatchedRoute = "unmatched"

// RouteTemplate rewrites a gin route pattern into the "{param}" form the
// platform client labels its requests with, so "/v1/agents/:id" becomes
// "/v1/agents/{id}".
func RouteTemplate(pattern string) string {
	if pattern == "" {
		return UnmatchedRoute
	}
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			segs[i] = "{" + name + "}"
		} else if name, ok := strings.CutPrefix(seg, "*"); ok {
			segs[i] = "{" + name + "...}"
		}
	}
	return strings.Join(segs, "/")
}

// ServedRequests logs and counts each request a platform double answers.
// Not-found answers on a known route are routine lookups and log at debug
// like successes.
func ServedRequests(server string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := RouteTemplate(c.FullPath())
		elapsed := time.Since(start)
		RecordServedRequest(server, c.Request.Method, route, status, elapsed)

		event := logger.Debug()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest && (status != http.StatusNotFound || route == UnmatchedRoute):
			event = logger.Warn()
		}
		event.
			Str("server", server).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("platform.served")
	}
}
