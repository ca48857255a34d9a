package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/notify"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
	"github.com/p-n-ai/pai-course/internal/platform/config"
	"github.com/p-n-ai/pai-course/internal/platform/database"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/session"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cat, err := course.LoadFile(cfg.ContentPath)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg, cat)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.Progress.Seed {
		if err := progress.Seed(b.store, cat); err != nil {
			return fmt.Errorf("seeding progress: %w", err)
		}
	}

	hub := notify.NewHub()
	ctrl, err := session.NewController(session.Config{
		Catalog:         cat,
		Store:           b.store,
		Grader:          assessment.NewLocalGrader(cfg.Session.GradingDelay),
		Notifier:        hub,
		Activity:        b.activity,
		LearnerID:       cfg.Session.LearnerID,
		AdvanceDelay:    cfg.Session.AdvanceDelay,
		NotificationTTL: cfg.Session.NotificationTTL,
		NoteSink:        noteSink(cfg.Session.LearnerID, b.activity),
	})
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newServer(cat, b.store, ctrl, hub, b.checks...).routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr, "course_id", cat.ID(), "backend", cfg.Progress.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		ctrl.Close()
		return nil
	})
	return g.Wait()
}

// newLogger builds the process logger from LogConfig. Unknown levels fall
// back to info.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// backends holds the progress store and its supporting connections.
type backends struct {
	store    progress.Store
	activity session.ActivityLogger
	checks   []checker
	closers  []func()
}

func openBackends(ctx context.Context, cfg *config.Config, cat *course.Catalog) (*backends, error) {
	b := &backends{activity: session.NopActivityLogger{}}

	switch cfg.Progress.Backend {
	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.checks = append(b.checks, db)

		store, err := progress.NewPostgresStore(ctx, db.Pool, cat, cfg.Session.LearnerID)
		if err != nil {
			b.Close()
			return nil, err
		}
		activity := session.NewPostgresActivityLogger(db.Pool)
		if err := activity.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.store, b.activity = store, activity

	case config.BackendRedis:
		c, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("closing cache", "error", err)
			}
		})
		b.checks = append(b.checks, c)

		store, err := progress.NewRedisStore(c.Client, cat, cfg.Session.LearnerID)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.store = store

	default:
		b.store = progress.NewMemoryStore(cat)
	}

	slog.Info("progress backend ready", "backend", cfg.Progress.Backend)
	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// noteSink records saved notes in the activity log. Note text is not stored.
func noteSink(learnerID string, activity session.ActivityLogger) func(lessonID, text string) {
	return func(lessonID, text string) {
		err := activity.LogActivity(session.Activity{
			LearnerID: learnerID,
			LessonID:  lessonID,
			Type:      session.ActivityNoteSaved,
			Data:      map[string]any{"length": len([]rune(text))},
		})
		if err != nil {
			slog.Warn("failed to record note", "lesson_id", lessonID, "error", err)
			return
		}
		slog.Info("note saved", "learner_id", learnerID, "lesson_id", lessonID)
	}
}
