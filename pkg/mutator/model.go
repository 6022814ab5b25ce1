package mutator

import (
	"context"

	"github.com/turtacn/littlejwt/pkg/logger"
)

// ModelRepository looks entities up by primary key for the model mutator.
type ModelRepository interface {
	Find(ctx context.Context, id interface{}) (interface{}, error)
}

// Identifiable is an entity that knows its own primary key.
type Identifiable interface {
	PrimaryKey() interface{}
}

// KeyExtractor is an optional ModelRepository extension for entities that do
// not implement Identifiable.
type KeyExtractor interface {
	PrimaryKeyOf(entity interface{}) (interface{}, bool)
}

// modelMutator stores entity references as primary keys. Lookups that fail
// hand back the raw key.
type modelMutator struct {
	repos map[string]ModelRepository
	log   logger.Logger
}

func (m modelMutator) repo(target Target) (string, ModelRepository) {
	if len(target.Args) == 0 {
		return "", nil
	}
	ref := target.Args[0]
	return ref, m.repos[ref]
}

func (m modelMutator) Serialize(_ context.Context, target Target, value interface{}) (interface{}, error) {
	if ent, ok := value.(Identifiable); ok {
		return ent.PrimaryKey(), nil
	}
	if _, repo := m.repo(target); repo != nil {
		if ex, ok := repo.(KeyExtractor); ok {
			if id, ok := ex.PrimaryKeyOf(value); ok {
				return id, nil
			}
		}
	}
	return value, nil
}

func (m modelMutator) Unserialize(ctx context.Context, target Target, value interface{}) (interface{}, error) {
	ref, repo := m.repo(target)
	if repo == nil {
		m.log.Warn(ctx, "No model repository registered",
			logger.String("claim", target.Key), logger.String("ref", ref))
		return value, nil
	}
	ent, err := repo.Find(ctx, value)
	if err != nil || ent == nil {
		m.log.Warn(ctx, "Model lookup failed, keeping raw value",
			logger.String("claim", target.Key), logger.String("ref", ref), logger.Err(err))
		return value, nil
	}
	return ent, nil
}
