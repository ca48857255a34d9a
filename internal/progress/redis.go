package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-course/internal/course"
)

const maxTxRetries = 5

// RedisStore keeps a learner's progress in Redis/Dragonfly: a set of
// completed lesson ids and a hash of derived module completion flags.
type RedisStore struct {
	client    *redis.Client
	catalog   *course.Catalog
	learnerID string
}

// NewRedisStore creates a store scoped to learnerID.
func NewRedisStore(client *redis.Client, cat *course.Catalog, learnerID string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if learnerID == "" {
		return nil, fmt.Errorf("learner_id is required")
	}
	return &RedisStore{client: client, catalog: cat, learnerID: learnerID}, nil
}

func (s *RedisStore) lessonsKey() string {
	return fmt.Sprintf("progress:%s:%s:lessons", s.catalog.ID(), s.learnerID)
}

func (s *RedisStore) modulesKey() string {
	return fmt.Sprintf("progress:%s:%s:modules", s.catalog.ID(), s.learnerID)
}

// MarkLessonComplete adds the lesson and rewrites its module flag in one
// MULTI/EXEC. The lesson set is watched so a concurrent completion in the
// same module forces a recount.
func (s *RedisStore) MarkLessonComplete(lessonID string) error {
	m, _, err := s.catalog.GetLesson(lessonID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	txf := func(tx *redis.Tx) error {
		done, err := s.countCompleted(ctx, tx, m, lessonID)
		if err != nil {
			return err
		}
		flag := "0"
		if done == len(m.Lessons) {
			flag = "1"
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, s.lessonsKey(), lessonID)
			pipe.HSet(ctx, s.modulesKey(), m.ID, flag)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, s.lessonsKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("mark lesson complete: %w", err)
		}
		return nil
	}
	return fmt.Errorf("mark lesson complete: %s: %w", lessonID, redis.TxFailedErr)
}

func (s *RedisStore) IsLessonComplete(lessonID string) (bool, error) {
	if _, err := s.catalog.Locate(lessonID); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	ok, err := s.client.SIsMember(ctx, s.lessonsKey(), lessonID).Result()
	if err != nil {
		return false, fmt.Errorf("query lesson completion: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) IsModuleComplete(moduleID string) (bool, error) {
	m, err := s.catalog.GetModule(moduleID)
	if err != nil {
		return false, err
	}
	if len(m.Lessons) == 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	flag, err := s.client.HGet(ctx, s.modulesKey(), moduleID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query module completion: %w", err)
	}
	return flag == "1", nil
}

func (s *RedisStore) ModuleProgress(moduleID string) (ModuleProgress, error) {
	m, err := s.catalog.GetModule(moduleID)
	if err != nil {
		return ModuleProgress{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	done, err := s.countCompleted(ctx, s.client, m, "")
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

// setReader is satisfied by both *redis.Client and *redis.Tx.
type setReader interface {
	SMIsMember(ctx context.Context, key string, members ...any) *redis.BoolSliceCmd
}

// countCompleted counts the module's completed lessons, treating also as
// completed when it is non-empty.
func (s *RedisStore) countCompleted(ctx context.Context, r setReader, m course.Module, also string) (int, error) {
	if len(m.Lessons) == 0 {
		return 0, nil
	}
	members := make([]any, len(m.Lessons))
	for i, id := range lessonIDs(m) {
		members[i] = id
	}
	flags, err := r.SMIsMember(ctx, s.lessonsKey(), members...).Result()
	if err != nil {
		return 0, fmt.Errorf("count lesson completions: %w", err)
	}
	n := 0
	for i, ok := range flags {
		if ok || members[i] == also {
			n++
		}
	}
	return n, nil
}
