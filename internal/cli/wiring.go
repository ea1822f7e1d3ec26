package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/config"
	"forum-quiz-service/internal/infra/file"
	"forum-quiz-service/internal/infra/memory"
	"forum-quiz-service/internal/infra/postgres"
	redisstore "forum-quiz-service/internal/infra/redis"
	"forum-quiz-service/internal/infra/sqlite"
	"forum-quiz-service/internal/infra/telegram"
	"forum-quiz-service/internal/logging"
)

// runtime holds the backends selected by configuration.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	catalog *app.CatalogService
	quizLog app.QuizLog

	redis   *redis.Client
	sqlite  *sql.DB
	pool    *pgxpool.Pool
	closers []func()
}

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logging.New(cfg.Log), nil
}

func openRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	catalogStore, err := rt.catalogStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	if rt.quizLog, err = rt.openQuizLog(ctx); err != nil {
		return nil, fmt.Errorf("open quiz log: %w", err)
	}
	if rt.catalog, err = app.NewCatalogService(ctx, catalogStore, logger); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return rt, nil
}

func (rt *runtime) catalogStore(ctx context.Context) (app.CatalogStore, error) {
	switch rt.cfg.Catalog.Backend {
	case "redis":
		return redisstore.NewCatalogStore(rt.redisClient(), rt.cfg.Redis.Prefix), nil
	case "sqlite":
		db, err := rt.sqliteDB(ctx)
		if err != nil {
			return nil, err
		}
		return sqlite.NewCatalogStore(db), nil
	default:
		return file.NewCatalogStore(rt.cfg.Catalog.Path), nil
	}
}

func (rt *runtime) openQuizLog(ctx context.Context) (app.QuizLog, error) {
	switch rt.cfg.QuizLog.Backend {
	case "none":
		return nil, nil
	case "memory":
		return memory.NewQuizLog(), nil
	case "redis":
		return redisstore.NewQuizLog(rt.redisClient(), rt.cfg.Redis.Prefix, rt.cfg.QuizLog.TTL), nil
	case "sqlite":
		db, err := rt.sqliteDB(ctx)
		if err != nil {
			return nil, err
		}
		return sqlite.NewQuizLog(db), nil
	case "postgres":
		pool, err := pgxpool.Connect(ctx, rt.cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		rt.pool = pool
		rt.closers = append(rt.closers, pool.Close)
		return postgres.NewQuizLog(pool), nil
	default:
		return file.NewQuizLog(rt.cfg.QuizLog.Dir), nil
	}
}

func (rt *runtime) redisClient() *redis.Client {
	if rt.redis == nil {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     rt.cfg.Redis.Addr,
			Password: rt.cfg.Redis.Password,
			DB:       rt.cfg.Redis.DB,
		})
		client := rt.redis
		rt.closers = append(rt.closers, func() { _ = client.Close() })
	}
	return rt.redis
}

func (rt *runtime) sqliteDB(ctx context.Context) (*sql.DB, error) {
	if rt.sqlite == nil {
		db, err := sqlite.Open(ctx, rt.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		rt.sqlite = db
		rt.closers = append(rt.closers, func() { _ = db.Close() })
	}
	return rt.sqlite, nil
}

// botAPI connects to the Bot API. It returns nil in dry-run mode.
func (rt *runtime) botAPI() (*tgbotapi.BotAPI, error) {
	if rt.cfg.Telegram.DryRun {
		return nil, nil
	}
	if err := rt.cfg.ValidateDispatch(); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(rt.cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	_ = tgbotapi.SetLogger(slogBridge{rt.logger})
	rt.logger.Info("bot api connected", "bot", api.Self.UserName)
	return api, nil
}

func (rt *runtime) sink(api *tgbotapi.BotAPI) app.DispatchSink {
	if api == nil {
		rt.logger.Warn("dry run: quizzes are recorded in memory and not sent")
		return memory.NewSink()
	}
	return telegram.NewSink(api, rt.cfg.Telegram.AnonymousPolls)
}

func (rt *runtime) pacer() app.Pacer {
	if rt.cfg.Dispatch.Pacer == "bucket" {
		return app.NewBucketPacer(clockwork.NewRealClock(), rt.cfg.Dispatch.Delay)
	}
	return app.NewFixedDelayPacer(clockwork.NewRealClock(), rt.cfg.Dispatch.Delay)
}

func (rt *runtime) importer(sink app.DispatchSink, opts ...app.ImporterOption) *app.Importer {
	base := []app.ImporterOption{
		app.WithLogger(rt.logger),
		app.WithMaxOptions(rt.cfg.Dispatch.MaxOptions),
	}
	if rt.quizLog != nil {
		base = append(base, app.WithQuizLog(rt.quizLog))
	}
	return app.NewImporter(rt.catalog, sink, rt.pacer(), append(base, opts...)...)
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// slogBridge routes the bot library's log output into slog.
type slogBridge struct{ logger *slog.Logger }

func (b slogBridge) Println(v ...interface{}) {
	b.logger.Debug(fmt.Sprint(v...))
}

func (b slogBridge) Printf(format string, v ...interface{}) {
	b.logger.Debug(fmt.Sprintf(format, v...))
}
