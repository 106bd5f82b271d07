// Package app wires a workspace into a running engine: config, database,
// artifact storage and the optional redis-backed job queue.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"blinkworks/internal/blob"
	"blinkworks/internal/config"
	"blinkworks/internal/db"
	"blinkworks/internal/engine"
	"blinkworks/internal/jobs"
	"blinkworks/internal/migrate"
	"blinkworks/internal/server"
)

// EnvFile is the dotenv file read from the workspace root.
const EnvFile = ".env"

// Runtime is everything a command needs for one workspace.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Blobs     blob.Store
	// Files serves local blobs; nil when artifacts live in S3.
	Files  http.Handler
	Redis  *redis.Client
	Logger *log.Logger

	closers []func() error
}

// LoadEnv reads workspace/.env into the process environment without
// overriding variables that are already set.
func LoadEnv(workspace string) error {
	path := filepath.Join(workspaceDir(workspace), EnvFile)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// SetEnvValue writes key=value into workspace/.env, keeping other entries.
func SetEnvValue(workspace, key, value string) error {
	path := filepath.Join(workspaceDir(workspace), EnvFile)
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}

// Open loads config, migrates the database and builds the engine.
func Open(ctx context.Context, workspace string, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.Default()
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Workspace: workspace, Config: cfg, DB: conn, Logger: logger}
	rt.closers = append(rt.closers, conn.Close)
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	blobs, files, err := OpenBlobs(ctx, workspace, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Blobs, rt.Files = blobs, files

	e := engine.New(conn, cfg)
	e.Blobs = blobs
	e.Logger = logger
	if cfg.Redis.Addr != "" {
		janitor, queue := jobs.NewClient(RedisOpt(cfg))
		e.Janitor = janitor
		rt.closers = append(rt.closers, queue.Close)
		rt.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, Password: cfg.Redis.Password})
		rt.closers = append(rt.closers, rt.Redis.Close)
	}
	rt.Engine = e
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// RateLimit returns the request limiter, or nil when redis or limits are off.
func (rt *Runtime) RateLimit() *server.RateLimit {
	if rt.Redis == nil || rt.Config.RateLimit.Requests <= 0 {
		return nil
	}
	rl := server.NewRateLimit(rt.Redis, rt.Config.RateLimit.Requests, rt.Config.RateLimit.Window)
	rl.Logger = rt.Logger
	return rl
}

// Worker returns the cleanup job processor for this runtime's blob store.
func (rt *Runtime) Worker() jobs.Worker {
	return jobs.Worker{Blobs: rt.Blobs, Logger: rt.Logger}
}

// RedisOpt converts the redis section into asynq connection options.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, Password: cfg.Redis.Password}
}

// OpenBlobs selects the artifact store named by storage.driver. Relative local
// roots resolve against the workspace.
func OpenBlobs(ctx context.Context, workspace string, cfg *config.Config) (blob.Store, http.Handler, error) {
	switch cfg.Storage.Driver {
	case "s3":
		s3cfg := cfg.Storage.S3
		store, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			PublicURL: s3cfg.PublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "local", "":
		root := cfg.Storage.Local.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(workspaceDir(workspace), root)
		}
		store := blob.NewFS(filepath.ToSlash(root), cfg.Storage.Local.BaseURL)
		return store, store.Handler(), nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func workspaceDir(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
