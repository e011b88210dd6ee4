package model

import (
	"time"

	"gorm.io/gorm"
)

// RateLimitLog is one ledger row: either a quota violation observed by the
// admission middleware or a manual block created by an operator
// (Method == "MANUAL", Attempts = 999, Limit = 0).
type RateLimitLog struct {
	ID           string     `json:"id" gorm:"primaryKey;type:text;not null"`
	Tenant       string     `json:"tenant" gorm:"size:8;index"`
	IPAddress    string     `json:"ip_address" gorm:"not null;index;size:45"`
	UserID       *string    `json:"user_id,omitempty" gorm:"index"`
	Route        string     `json:"route" gorm:"index;size:255"`
	Method       string     `json:"method" gorm:"not null;size:10"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
	Attempts     int        `json:"attempts" gorm:"default:1;not null"`
	Limit        int        `json:"limit" gorm:"default:0;not null"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty" gorm:"index"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null"`
}

func (RateLimitLog) TableName() string {
	return "rate_limit_logs"
}

// IsActive reports whether the block this row represents is still in force.
func (l *RateLimitLog) IsActive(now time.Time) bool {
	return l.BlockedUntil != nil && l.BlockedUntil.After(now)
}

func (l *RateLimitLog) IsManual() bool {
	return l.Method == "MANUAL"
}

// ScopeBlocked narrows a query to rows whose block is still in force.
func ScopeBlocked(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("blocked_until > ?", now)
	}
}

// ScopeExpired narrows a query to rows whose block has lapsed.
func ScopeExpired(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("blocked_until < ?", now)
	}
}
