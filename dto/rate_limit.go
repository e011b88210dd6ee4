package dto

import (
	"time"

	"github.com/sahafa-network/guard_api/model"
)

// RateLimitInfo is the counter state captured at decision time; it backs the
// X-RateLimit-* response headers.
type RateLimitInfo struct {
	Allowed   bool `json:"allowed"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	// RetryAfter is seconds until the current window resets.
	RetryAfter int `json:"retry_after"`
}

type BlockIPRequest struct {
	IPAddress    string `json:"ip_address" validate:"required,ip"`
	Duration     int    `json:"duration" validate:"required,min=1"`
	DurationUnit string `json:"duration_unit" validate:"required,oneof=minutes hours days"`
}

func (r BlockIPRequest) Validate() error {
	return GetValidator().Struct(r)
}

// BlockDuration converts duration + unit into a time.Duration.
func (r BlockIPRequest) BlockDuration() time.Duration {
	switch r.DurationUnit {
	case "hours":
		return time.Duration(r.Duration) * time.Hour
	case "days":
		return time.Duration(r.Duration) * 24 * time.Hour
	default:
		return time.Duration(r.Duration) * time.Minute
	}
}

type ListRateLimitLogsRequest struct {
	Filter    string `query:"filter" validate:"omitempty,oneof=all blocked expired"`
	Search    string `query:"search"`
	Page      int    `query:"page" validate:"omitempty,min=1"`
	PerPage   int    `query:"per_page" validate:"omitempty,min=1,max=100"`
	SortBy    string `query:"sort_by" validate:"omitempty,oneof=created_at blocked_until ip_address route attempts"`
	SortOrder string `query:"sort_order" validate:"omitempty,oneof=asc desc"`
}

func (r *ListRateLimitLogsRequest) Normalize() {
	if r.Filter == "" {
		r.Filter = "all"
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PerPage < 1 {
		r.PerPage = 15
	}
	if r.SortBy == "" {
		r.SortBy = "created_at"
	}
	if r.SortOrder == "" {
		r.SortOrder = "desc"
	}
}

type RateLimitLogListResponse struct {
	Logs    []model.RateLimitLog `json:"logs"`
	Total   int64                `json:"total"`
	Page    int                  `json:"page"`
	PerPage int                  `json:"per_page"`
}

type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

type RateLimitStatsResponse struct {
	Enabled        bool              `json:"enabled"`
	GlobalLimits   map[string]string `json:"global_limits"`
	RouteLimits    map[string]string `json:"route_limits"`
	UserLimits     map[string]string `json:"user_limits"`
	TotalRecords   int64             `json:"total_records"`
	BlockedRecords int64             `json:"blocked_records"`
	Timestamp      time.Time         `json:"timestamp"`
}
