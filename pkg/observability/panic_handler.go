package observability

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the stack trace.
// Must be called directly in a defer statement. The panic is not re-raised.
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "notification publish")
//	    ...
//	}()
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// RecoveryMiddleware turns handler panics into a 500 instead of a dropped connection
func RecoveryMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					FromContext(r.Context()).
						WithField("panic", fmt.Sprint(rec)).
						WithField("stack", string(debug.Stack())).
						WithField("path", r.URL.Path).
						Error("PANIC recovered in handler")
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
