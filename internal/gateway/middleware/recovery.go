package middleware

import (
	"net/http"
	"runtime/debug"

	"mindrian/internal/gateway/handlers"
	"mindrian/pkg/logger"
)

// Recovery turns handler panics into a 500 error envelope. The
// http.ErrAbortHandler sentinel is re-raised so the server can abort the
// connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.Error().
				Interface("error", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}
