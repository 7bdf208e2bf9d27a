// Package middleware provides the HTTP middleware stack.
//
//   - CORS: cross-origin access for the extension and local manager UI
//   - RateLimit: per-IP token bucket rate limiting
//
// Example:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(cfg.RateLimit))
package middleware
