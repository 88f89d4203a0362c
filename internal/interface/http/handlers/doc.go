// Package handlers contains the HTTP handlers, health checks and middleware
// of the calendar service.
//
// # Calendar
//
// CalendarHandler serves the feed and its JSON source data. When a calendar
// token is configured, it is read from the "token" query parameter, the
// X-Calendar-Token header or an "Authorization: Bearer" header, in that order.
//
// # Health Checks
//
// HealthChecker runs named checks in parallel and answers 204 or 503:
//
//	checker := handlers.NewHealthChecker(log)
//	checker.AddCheck("upstream", handlers.NewUpstreamCheck(client, user, pass))
//	checker.AddCheck("feed_store", handlers.NewPingCheck(store, handlers.MsgFeedStore))
//
// # Middleware
//
//	handler := handlers.Chain(
//	    handlers.RecoveryMiddleware,
//	    handlers.RequestIDMiddleware(log),
//	    handlers.RealIPMiddleware("x-forwarded-for"),
//	    handlers.LoggingMiddleware,
//	    limiter.Middleware,
//	)(router)
package handlers
