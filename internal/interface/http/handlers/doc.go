// Package handlers contains reusable HTTP building blocks: health checks,
// API key authentication and generic middleware.
//
// # Health Checks
//
// The HealthChecker interface runs named checks in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("postgres", handlers.NewDatabaseCheck(pool))
//	checker.AddCheck("redis", handlers.NewCacheCheck(cache))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
// Middleware compose with Chain; the first argument is the outermost wrapper:
//
//	h := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(256<<10),
//	)
package handlers
