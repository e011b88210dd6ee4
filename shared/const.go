package shared

const (
	UserID   = "user_id"
	UserRole = "user_role"
	Tenant   = "tenant"

	RoleAdmin   = "admin"
	RoleDefault = "default"
	RoleGuest   = "guest"

	LimiterTypeAPI    = "api"
	LimiterTypeWeb    = "web"
	LimiterTypeRoute  = "route"
	LimiterTypeUser   = "user"
	LimiterTypeCustom = "custom"

	MethodManual = "MANUAL"

	FilterAll     = "all"
	FilterBlocked = "blocked"
	FilterExpired = "expired"
)
