// Package middleware provides HTTP middleware for request observability.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs each HTTP request with method, path, status and duration.
// Headers and bodies other than Content-Type and Origin are never logged;
// they carry bearer tokens.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		LogRequestHeaders:  []string{"Content-Type", "Origin"},
		LogResponseHeaders: []string{},

		// Panics are recovered by the gateway's own middleware and still logged here.
		RecoverPanics: false,
	})
}
