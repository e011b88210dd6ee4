package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahafa-network/guard_api/model"
)

// DbService owns one gorm connection per tenant (country database). Each
// tenant's DSN comes from DB_DSN_<TENANT>; tenants without a postgres DSN fall
// back to a local sqlite file, which keeps dev and test environments
// self-contained.
type DbService struct {
	context.DefaultService

	tenants       []string
	defaultTenant string
	connections   map[string]*gorm.DB
}

const DB_SVC = "db_svc"

func (ds DbService) Id() string {
	return DB_SVC
}

func (ds *DbService) Configure(ctx *context.Context) error {
	ds.tenants = splitList(os.Getenv("TENANTS"))
	if len(ds.tenants) == 0 {
		ds.tenants = []string{"jo", "sa", "eg", "ps"}
	}

	ds.defaultTenant = os.Getenv("DEFAULT_TENANT")
	if ds.defaultTenant == "" {
		ds.defaultTenant = ds.tenants[0]
	}

	ds.connections = make(map[string]*gorm.DB)
	return ds.DefaultService.Configure(ctx)
}

// Start opens a connection per tenant and migrates the ledger schema on each.
func (ds *DbService) Start() error {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	for _, tenant := range ds.tenants {
		dsn := os.Getenv("DB_DSN_" + strings.ToUpper(tenant))

		var db *gorm.DB
		var err error
		if dsn != "" {
			db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		} else {
			file := os.Getenv("DB_DATABASE")
			if file == "" {
				file = "guard_api.db"
			}
			db, err = gorm.Open(sqlite.Open(tenantFile(file, tenant)), gormCfg)
		}
		if err != nil {
			return fmt.Errorf("open database for tenant %s: %w", tenant, err)
		}

		if err := db.AutoMigrate(&model.RateLimitLog{}); err != nil {
			log.WithError(err).WithField("tenant", tenant).Error("Failed to migrate database")
			return err
		}

		ds.connections[tenant] = db
	}

	log.WithField("tenants", ds.tenants).Info("Databases connected and migrated")
	return nil
}

func (ds *DbService) Shutdown() {
}

// Db returns the connection for the given tenant, falling back to the default
// tenant for unknown values.
func (ds *DbService) Db(tenant string) *gorm.DB {
	if db, ok := ds.connections[tenant]; ok {
		return db
	}
	return ds.connections[ds.defaultTenant]
}

func (ds *DbService) DefaultTenant() string {
	return ds.defaultTenant
}

func (ds *DbService) Tenants() []string {
	return ds.tenants
}

func (ds *DbService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		statusCode = http.StatusBadRequest
		errorType = "FOREIGN_KEY_VIOLATION"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError
		errorType = "TRANSACTION_ERROR"
	default:
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			statusCode = http.StatusConflict
			errorType = "UNIQUE_CONSTRAINT"
		} else {
			statusCode = http.StatusInternalServerError
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}

func tenantFile(base, tenant string) string {
	if idx := strings.LastIndex(base, "."); idx > 0 {
		return base[:idx] + "_" + tenant + base[idx:]
	}
	return base + "_" + tenant
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
