package obs

import "expvar"

// Process-wide counters published under /debug/vars.
var (
	UpdatesApplied    = expvar.NewInt("inventory_updates_applied")
	VersionConflicts  = expvar.NewInt("inventory_version_conflicts")
	RateLimited       = expvar.NewInt("inventory_rate_limited")
	CircuitRejections = expvar.NewInt("inventory_circuit_rejections")
	NotificationsSent = expvar.NewInt("inventory_notifications_published")
)
