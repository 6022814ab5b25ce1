package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/revocation"
)

var _ revocation.Backend = (*RevocationStore)(nil)

// RevocationStore keeps revoked ids in a table with a nullable expiry column.
// Expired rows stay until Purge but no longer count as revoked. Times are
// stored in UTC at second precision so they compare correctly as text on
// SQLite. Expiries round up and the current time rounds down, so an entry
// never lapses before its ttl.
type RevocationStore struct {
	db           *gorm.DB
	table        string
	idColumn     string
	expiryColumn string
	logger       logger.Logger
}

// NewRevocationStore creates a store over the table named in cfg.
func NewRevocationStore(db *gorm.DB, cfg config.DatabaseConfig, log logger.Logger) *RevocationStore {
	s := &RevocationStore{
		db:           db,
		table:        cfg.Table,
		idColumn:     cfg.IDColumn,
		expiryColumn: cfg.ExpiryColumn,
	}
	if s.table == "" {
		s.table = constants.DefaultRevocationTable
	}
	if s.idColumn == "" {
		s.idColumn = constants.DefaultRevocationIDColumn
	}
	if s.expiryColumn == "" {
		s.expiryColumn = constants.DefaultRevocationExpiryColumn
	}
	if log == nil {
		log = logger.L()
	}
	s.logger = log.WithComponent("database_revocation")
	return s
}

func (s *RevocationStore) Name() string {
	return string(constants.RevocationDriverDatabase)
}

// EnsureSchema creates the table when it does not exist.
func (s *RevocationStore) EnsureSchema(ctx context.Context) error {
	timestamp := "TIMESTAMP"
	if s.db.Dialector.Name() == "postgres" {
		timestamp = "TIMESTAMPTZ"
	}
	err := s.db.WithContext(ctx).Exec(
		"CREATE TABLE IF NOT EXISTS ? (? VARCHAR(255) NOT NULL PRIMARY KEY, ? "+timestamp+" NULL)",
		clause.Table{Name: s.table}, clause.Column{Name: s.idColumn}, clause.Column{Name: s.expiryColumn},
	).Error
	if err != nil {
		s.logger.Error(ctx, "Failed to create revocation table", err, logger.String("table", s.table))
		return err
	}
	return nil
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func dbExpiry(t time.Time) time.Time {
	s := dbTime(t)
	if s.Before(t) {
		s = s.Add(time.Second)
	}
	return s
}

func (s *RevocationStore) Contains(ctx context.Context, id string, now time.Time) (bool, error) {
	expiry := clause.Column{Name: s.expiryColumn}
	var n int64
	err := s.db.WithContext(ctx).
		Table(s.table).
		Where(clause.Eq{Column: clause.Column{Name: s.idColumn}, Value: id}).
		Where(clause.Or(
			clause.Eq{Column: expiry, Value: nil},
			clause.Gt{Column: expiry, Value: dbTime(now)},
		)).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Put inserts the entry or replaces the expiry of an existing one.
func (s *RevocationStore) Put(ctx context.Context, entry revocation.Entry, _ time.Time) error {
	var expiresAt interface{}
	if entry.ExpiresAt != nil {
		expiresAt = dbExpiry(*entry.ExpiresAt)
	}
	return s.db.WithContext(ctx).
		Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: s.idColumn}},
			DoUpdates: clause.AssignmentColumns([]string{s.expiryColumn}),
		}).
		Create(map[string]interface{}{
			s.idColumn:     entry.ID,
			s.expiryColumn: expiresAt,
		}).Error
}

// Purge deletes rows whose expiry has passed.
func (s *RevocationStore) Purge(ctx context.Context, now time.Time) error {
	expiry := clause.Column{Name: s.expiryColumn}
	result := s.db.WithContext(ctx).Exec(
		"DELETE FROM ? WHERE ? IS NOT NULL AND ? <= ?",
		clause.Table{Name: s.table}, expiry, expiry, dbTime(now),
	)
	if result.Error != nil {
		return result.Error
	}
	s.logger.Info(ctx, "Purged expired revocations", logger.Int64("rows", result.RowsAffected))
	return nil
}
