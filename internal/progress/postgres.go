package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-course/internal/course"
)

const dbTimeout = 5 * time.Second

const schemaSQL = `
CREATE TABLE IF NOT EXISTS lesson_completions (
	learner_id   TEXT        NOT NULL,
	lesson_id    TEXT        NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (learner_id, lesson_id)
);

CREATE TABLE IF NOT EXISTS module_completions (
	learner_id TEXT        NOT NULL,
	module_id  TEXT        NOT NULL,
	completed  BOOLEAN     NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (learner_id, module_id)
);`

// PostgresStore is a PostgreSQL-backed Store for a single learner.
type PostgresStore struct {
	pool      *pgxpool.Pool
	catalog   *course.Catalog
	learnerID string
}

// NewPostgresStore creates a store scoped to learnerID and makes sure the
// progress tables exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, cat *course.Catalog, learnerID string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if learnerID == "" {
		return nil, fmt.Errorf("learner_id is required")
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("create progress tables: %w", err)
	}

	return &PostgresStore{
		pool:      pool,
		catalog:   cat,
		learnerID: learnerID,
	}, nil
}

func (s *PostgresStore) MarkLessonComplete(lessonID string) error {
	m, _, err := s.catalog.GetLesson(lessonID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`INSERT INTO lesson_completions (learner_id, lesson_id)
			 VALUES ($1, $2)
			 ON CONFLICT (learner_id, lesson_id) DO NOTHING`,
			s.learnerID,
			lessonID,
		)
		if err != nil {
			return fmt.Errorf("insert lesson completion: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return nil // already complete
		}

		done, err := countCompleted(ctx, tx, s.learnerID, lessonIDs(m))
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO module_completions (learner_id, module_id, completed, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (learner_id, module_id)
			 DO UPDATE SET completed = EXCLUDED.completed, updated_at = EXCLUDED.updated_at`,
			s.learnerID,
			m.ID,
			done == len(m.Lessons),
		); err != nil {
			return fmt.Errorf("upsert module completion: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) IsLessonComplete(lessonID string) (bool, error) {
	if _, err := s.catalog.Locate(lessonID); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM lesson_completions WHERE learner_id = $1 AND lesson_id = $2
		 )`,
		s.learnerID,
		lessonID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("query lesson completion: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) IsModuleComplete(moduleID string) (bool, error) {
	m, err := s.catalog.GetModule(moduleID)
	if err != nil {
		return false, err
	}
	if len(m.Lessons) == 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var completed bool
	err = s.pool.QueryRow(ctx,
		`SELECT completed FROM module_completions WHERE learner_id = $1 AND module_id = $2`,
		s.learnerID,
		moduleID,
	).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query module completion: %w", err)
	}
	return completed, nil
}

func (s *PostgresStore) ModuleProgress(moduleID string) (ModuleProgress, error) {
	m, err := s.catalog.GetModule(moduleID)
	if err != nil {
		return ModuleProgress{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	done, err := countCompleted(ctx, s.pool, s.learnerID, lessonIDs(m))
	if err != nil {
		return ModuleProgress{}, err
	}
	return ModuleProgress{
		ModuleID:       m.ID,
		CompletedCount: done,
		TotalCount:     len(m.Lessons),
		Percentage:     Percentage(done, len(m.Lessons)),
	}, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countCompleted(ctx context.Context, q rowQuerier, learnerID string, lessonIDs []string) (int, error) {
	var n int
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM lesson_completions WHERE learner_id = $1 AND lesson_id = ANY($2)`,
		learnerID,
		lessonIDs,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count lesson completions: %w", err)
	}
	return n, nil
}
