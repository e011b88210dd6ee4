package services

import (
	"fmt"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sahafa-network/guard_api/dto"
	"github.com/sahafa-network/guard_api/model"
	"github.com/sahafa-network/guard_api/shared"
)

// LedgerService is the persisted history of quota violations and manual IP
// blocks. Reads fail open: if the database is unreachable, IsBlocked reports
// not-blocked rather than locking out all traffic.
type LedgerService struct {
	appContext.DefaultService

	dbFor          func(tenant string) *gorm.DB
	tenants        []string
	staticPatterns []string
	retentionDays  int

	closed chan struct{}
}

const LEDGER_SVC = "ledger_svc"

func (svc LedgerService) Id() string {
	return LEDGER_SVC
}

func (svc *LedgerService) Configure(ctx *appContext.Context) error {
	svc.retentionDays = envInt("RATE_LIMIT_RETENTION_DAYS", 0)
	svc.closed = make(chan struct{})
	return svc.DefaultService.Configure(ctx)
}

func (svc *LedgerService) Start() error {
	dbSvc := svc.Service(DB_SVC).(*DbService)
	policySvc := svc.Service(POLICY_SVC).(*PolicyService)

	svc.dbFor = dbSvc.Db
	svc.tenants = dbSvc.Tenants()
	svc.staticPatterns = policySvc.BlockedIPs()

	if svc.retentionDays > 0 {
		go svc.startRetentionJob()
	}

	return nil
}

func (svc *LedgerService) Shutdown() {
	close(svc.closed)
}

// IsBlocked reports whether ip is denied outright: either a static configured
// pattern matches, or a MANUAL ledger record with a future blocked_until
// exists. Static matches never touch the database.
func (svc *LedgerService) IsBlocked(tenant, ip string, now time.Time) bool {
	if shared.MatchAny(svc.staticPatterns, ip) {
		return true
	}

	var record model.RateLimitLog
	err := svc.dbFor(tenant).
		Where("ip_address = ?", ip).
		Where("method = ?", shared.MethodManual).
		Where("blocked_until > ?", now).
		Order("blocked_until desc").
		First(&record).Error

	if err == nil {
		return true
	}
	if err != gorm.ErrRecordNotFound {
		log.WithError(err).WithField("ip", ip).Error("Error checking IP block status")
	}
	return false
}

// LogAttempt persists a violation observation. Callers treat failures as
// best-effort: a write error never changes an admission decision.
func (svc *LedgerService) LogAttempt(tenant string, entry model.RateLimitLog) (*model.RateLimitLog, error) {
	entry.ID = uuid.NewString()
	entry.Tenant = tenant
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Attempts < 1 {
		entry.Attempts = 1
	}

	if err := svc.dbFor(tenant).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ManualBlock persists an administrative block for ip lasting until the given
// time. Manual blocks are marked with method MANUAL, attempts 999 and limit 0.
func (svc *LedgerService) ManualBlock(tenant, ip string, until time.Time, actorLabel string) (*model.RateLimitLog, error) {
	return svc.LogAttempt(tenant, model.RateLimitLog{
		IPAddress:    ip,
		Route:        "manual-block",
		Method:       shared.MethodManual,
		UserAgent:    "Blocked by admin: " + actorLabel,
		Attempts:     999,
		Limit:        0,
		BlockedUntil: &until,
	})
}

// List returns a page of ledger records with the admin surface's filters.
func (svc *LedgerService) List(tenant string, req dto.ListRateLimitLogsRequest) (*dto.RateLimitLogListResponse, error) {
	req.Normalize()

	query := svc.filtered(tenant, req.Filter)

	if req.Search != "" {
		pattern := "%" + req.Search + "%"
		query = query.Where(
			"ip_address LIKE ? OR route LIKE ? OR user_agent LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Model(&model.RateLimitLog{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var logs []model.RateLimitLog
	err := query.
		Order(fmt.Sprintf("%s %s", req.SortBy, req.SortOrder)).
		Offset((req.Page - 1) * req.PerPage).
		Limit(req.PerPage).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	return &dto.RateLimitLogListResponse{
		Logs:    logs,
		Total:   total,
		Page:    req.Page,
		PerPage: req.PerPage,
	}, nil
}

// Delete removes a single ledger record.
func (svc *LedgerService) Delete(tenant, id string) error {
	result := svc.dbFor(tenant).Where("id = ?", id).Delete(&model.RateLimitLog{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("Rate limit log not found")
	}
	return nil
}

// Purge bulk-deletes records matching the filter and returns the count
// removed.
func (svc *LedgerService) Purge(tenant, filter string) (int64, error) {
	result := svc.filtered(tenant, filter).
		Where("1 = 1").
		Delete(&model.RateLimitLog{})
	return result.RowsAffected, result.Error
}

// Counts returns the total and currently-blocked record counts for the stats
// endpoint.
func (svc *LedgerService) Counts(tenant string) (total, blocked int64) {
	db := svc.dbFor(tenant)
	if err := db.Model(&model.RateLimitLog{}).Count(&total).Error; err != nil {
		log.WithError(err).Error("Failed to count ledger records")
	}
	err := db.Model(&model.RateLimitLog{}).
		Scopes(model.ScopeBlocked(time.Now())).
		Count(&blocked).Error
	if err != nil {
		log.WithError(err).Error("Failed to count blocked ledger records")
	}
	return total, blocked
}

func (svc *LedgerService) filtered(tenant, filter string) *gorm.DB {
	query := svc.dbFor(tenant).Model(&model.RateLimitLog{})
	switch filter {
	case shared.FilterBlocked:
		query = query.Scopes(model.ScopeBlocked(time.Now()))
	case shared.FilterExpired:
		query = query.Scopes(model.ScopeExpired(time.Now()))
	}
	return query
}

// startRetentionJob deletes rows whose block lapsed more than retentionDays
// ago. Records never auto-expire otherwise; expiry is logical via
// blocked_until.
func (svc *LedgerService) startRetentionJob() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -svc.retentionDays)
			for _, tenant := range svc.tenants {
				result := svc.dbFor(tenant).
					Where("blocked_until < ?", cutoff).
					Delete(&model.RateLimitLog{})
				if result.Error != nil {
					log.WithError(result.Error).WithField("tenant", tenant).Error("Ledger retention cleanup failed")
				} else if result.RowsAffected > 0 {
					log.WithFields(log.Fields{
						"tenant":  tenant,
						"deleted": result.RowsAffected,
					}).Info("Ledger retention cleanup completed")
				}
			}
		case <-svc.closed:
			return
		}
	}
}
