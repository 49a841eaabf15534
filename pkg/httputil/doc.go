// Package httputil holds the JSON response helpers, request parsing and the
// error-to-status mapping shared by every handler.
//
// Handlers return domain errors to WriteAccessError instead of choosing
// status codes themselves:
//
//	app, err := svc.GetApplication(r.Context(), id)
//	if err != nil {
//		httputil.WriteAccessError(w, r, err)
//		return
//	}
//	httputil.WriteSuccess(w, app)
//
// Unresolvable or inactive tenants answer 404 "access unavailable", every
// denial answers 403 "forbidden", and a refused workflow transition answers
// 422 with the current and requested state.
package httputil
