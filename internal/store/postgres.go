package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/model"
	"catalog-service/prometheus"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres error codes that mean "try again later"
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

// PostgresStore keeps catalog items in a gorm database. The listing ledger
// lives in the item row, so a row lock is enough to serialize reconciliation.
type PostgresStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewPostgresStore(db *gorm.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// mutationError marks errors returned by the caller's Mutation so they pass
// through classify untouched.
type mutationError struct{ err error }

func (e *mutationError) Error() string { return e.err.Error() }
func (e *mutationError) Unwrap() error { return e.err }

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*model.CatalogItem, error) {
	defer prometheus.TrackDBOperation("select")(time.Now())
	return s.get(s.db.WithContext(ctx), id)
}

func (s *PostgresStore) get(db *gorm.DB, id uuid.UUID) (*model.CatalogItem, error) {
	var item model.CatalogItem
	if err := db.Preload("Category").First(&item, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &item, nil
}

func (s *PostgresStore) Create(ctx context.Context, item *model.CatalogItem) (*model.CatalogItem, error) {
	defer prometheus.TrackDBOperation("insert")(time.Now())

	stored := item.Clone()
	stored.ID = uuid.New()
	stored.Category = nil

	db := s.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(stored).Error; err != nil {
		return nil, classify(err)
	}
	return s.get(db, stored.ID)
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, mutate Mutation) (*model.CatalogItem, error) {
	defer prometheus.TrackDBOperation("update")(time.Now())

	var saved *model.CatalogItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if s.isPostgres() {
			// Bounded wait for the row lock; expiry surfaces as 55P03.
			if err := tx.Exec(lockTimeoutStatement(s.lockTimeout)).Error; err != nil {
				return err
			}
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var item model.CatalogItem
		if err := query.First(&item, "id = ?", id).Error; err != nil {
			return err
		}
		if err := mutate(&item); err != nil {
			return &mutationError{err: err}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		item.ID = id
		item.Category = nil
		if err := tx.Omit(clause.Associations).Save(&item).Error; err != nil {
			return err
		}

		// Read back under the row lock so the result is exactly this write
		var err error
		saved, err = s.get(tx, id)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return saved, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]model.CatalogItem, error) {
	defer prometheus.TrackDBOperation("select")(time.Now())

	query := s.db.WithContext(ctx).
		Preload("Category").
		Where("seller_segment = ?", filter.Segment)
	if len(filter.CategoryIDs) > 0 {
		query = query.Where("category_id IN ?", filter.CategoryIDs)
	}
	if filter.FeaturedOnly {
		query = query.Where("is_featured = ?", true)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []model.CatalogItem
	if err := query.Order("created_at").Find(&items).Error; err != nil {
		return nil, classify(err)
	}
	return items, nil
}

// lockTimeoutStatement rounds d up to whole milliseconds. Postgres reads a
// lock_timeout of 0 as "wait forever", so the result is never below 1ms.
func lockTimeoutStatement(d time.Duration) string {
	ms := int64((d + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}

func (s *PostgresStore) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

// classify maps storage errors onto the catalog error taxonomy.
func classify(err error) error {
	var mErr *mutationError
	if errors.As(err, &mErr) {
		return mErr.err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrItemNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return fmt.Errorf("%w: item lock not available", model.ErrConflict)
		case pgDeadlockDetected, pgSerializationFailure:
			return fmt.Errorf("%w: %s", model.ErrConflict, pgErr.Message)
		}
	}
	return errors.Join(model.ErrConflict, err)
}
