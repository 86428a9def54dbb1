// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tribune/internal/database"
	"tribune/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Uint64

// NewSQLiteDB opens a private in-memory database with the full schema.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("file:tribune_test_%d?mode=memory&cache=shared&_foreign_keys=on", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// One connection keeps the shared in-memory database alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user with a unique username and email.
func CreateUser(t testing.TB, db *gorm.DB, admin bool) *models.User {
	t.Helper()
	suffix := strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	u := &models.User{
		Username: "user_" + suffix,
		FullName: "User " + suffix,
		Email:    "user_" + suffix + "@example.com",
		Password: "x",
		IsAdmin:  admin,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreatePost inserts a post authored by author. Zero-valued fields get defaults.
func CreatePost(t testing.TB, db *gorm.DB, author *models.User, p models.Post) *models.Post {
	t.Helper()
	if p.Title == "" {
		p.Title = "Post " + uuid.NewString()[:8]
	}
	if p.Content == "" {
		p.Content = "Content"
	}
	if p.Excerpt == "" {
		p.Excerpt = "Excerpt"
	}
	if p.Category == "" {
		p.Category = "Technology"
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	p.AuthorID = author.ID
	p.Author = author.DisplayName()
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	return &p
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
