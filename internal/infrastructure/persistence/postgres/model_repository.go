package postgres

import (
	"context"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/mutator"
)

var (
	_ mutator.ModelRepository = (*ModelRepository[struct{}])(nil)
	_ mutator.KeyExtractor    = (*ModelRepository[struct{}])(nil)
)

// ModelRepository loads gorm models of type T by primary key for the model
// mutator.
type ModelRepository[T any] struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewModelRepository creates a repository for T.
func NewModelRepository[T any](db *gorm.DB, log logger.Logger) *ModelRepository[T] {
	if log == nil {
		log = logger.L()
	}
	return &ModelRepository[T]{db: db, logger: log.WithComponent("model_repository")}
}

// Find returns a *T whose primary key equals id.
func (r *ModelRepository[T]) Find(ctx context.Context, id interface{}) (interface{}, error) {
	model := new(T)
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: clause.PrimaryKey}, Value: id}).
		First(model).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			r.logger.Error(ctx, "Model lookup failed", err, logger.Any("id", id))
		}
		return nil, err
	}
	return model, nil
}

// PrimaryKeyOf reads the primary key of a T or *T from its gorm schema.
func (r *ModelRepository[T]) PrimaryKeyOf(entity interface{}) (interface{}, bool) {
	switch entity.(type) {
	case T, *T:
	default:
		return nil, false
	}
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(entity); err != nil || stmt.Schema.PrioritizedPrimaryField == nil {
		return nil, false
	}
	value, zero := stmt.Schema.PrioritizedPrimaryField.ValueOf(context.Background(), reflect.Indirect(reflect.ValueOf(entity)))
	if zero {
		return nil, false
	}
	return value, true
}
