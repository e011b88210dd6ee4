package handlers

import (
	"time"

	"github.com/sahafa-network/guard_api/dto"
	"github.com/sahafa-network/guard_api/model"
)

type LedgerServiceInterface interface {
	List(tenant string, req dto.ListRateLimitLogsRequest) (*dto.RateLimitLogListResponse, error)
	Delete(tenant, id string) error
	Purge(tenant, filter string) (int64, error)
	ManualBlock(tenant, ip string, until time.Time, actorLabel string) (*model.RateLimitLog, error)
	Counts(tenant string) (total, blocked int64)
}

type PolicyServiceInterface interface {
	Enabled() bool
	Snapshot() (global, routes, users map[string]string)
}
