package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex = "/"

	// Auth Routes - Login & Logout
	RouteLogin      = "/login"
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"
	RouteOAuthStart = "/auth/oauth/{provider}"
	RouteCallback   = "/auth/callback"

	// API Routes
	RouteAPIProfile = "/api/profile"

	// Operational Routes
	RouteHealth  = "/health"
	RouteReady   = "/ready"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStatic = "/static/{file}"
)
