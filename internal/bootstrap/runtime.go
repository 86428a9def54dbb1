// Package bootstrap wires the process-wide runtime: database, schema, read
// replica, Redis and the optional development admin.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tribune/internal/cache"
	"tribune/internal/config"
	"tribune/internal/database"
	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty database with demo users, posts and likes.
	SeedDemo bool
}

// InitRuntime connects to the database, applies the schema, and connects Redis.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return nil, nil, fmt.Errorf("schema setup failed: %w", err)
	}
	database.ConnectReadReplica(cfg)

	// A nil client means Redis is unreachable; callers degrade.
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := ensureDevRootAdmin(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	if opts.SeedDemo {
		if _, err := seed.Run(ctx, db, seed.DefaultOptions()); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo content: %w", err)
		}
	}

	return db, r, nil
}

// ensureDevRootAdmin creates (or re-promotes) an admin account in development
// so the editor screens are usable on a fresh database.
func ensureDevRootAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	username := strings.TrimSpace(cfg.DevRootUsername)
	if username == "" {
		username = "tribune_root"
	}
	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = "root@tribune.local"
	}
	password := cfg.DevRootPassword
	if password == "" {
		return errors.New("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}

	var promoted uint
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root models.User
		findErr := tx.Where("email = ?", email).First(&root).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			root = models.User{
				Username: username,
				FullName: "Tribune Editor",
				Email:    email,
				Password: string(hashedPassword),
				IsAdmin:  true,
			}
			return tx.Create(&root).Error
		case findErr != nil:
			return findErr
		default:
			promoted = root.ID
			return tx.Model(&models.User{}).Where("id = ?", root.ID).Update("is_admin", true).Error
		}
	})
	if err != nil {
		return err
	}
	if promoted != 0 {
		cache.InvalidateUser(ctx, promoted)
	}

	middleware.Logger.Info("development root admin ensured", slog.String("email", email))
	return nil
}
