// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"tribune/internal/middleware"
	"tribune/internal/models"

	"gorm.io/gorm"
)

// DemoPassword is the password of every generated account.
const DemoPassword = "Tribune-Demo-2024!"

// Options configuration for the seeder
type Options struct {
	NumAuthors int
	NumUsers   int
	NumPosts   int
	// MaxDays bounds how far back publication dates are spread.
	MaxDays int
	// LikeRate is the chance that a given reader likes a given post.
	LikeRate    float64
	ShouldClean bool
	SkipBcrypt  bool
	RandSeed    int64
}

// Result reports what Run created.
type Result struct {
	Authors []*models.User
	Readers []*models.User
	Posts   []*models.Post
	Likes   int
	Skipped bool
}

// DefaultOptions is a small demo site.
func DefaultOptions() Options {
	return Options{
		NumAuthors: 2,
		NumUsers:   20,
		NumPosts:   40,
		MaxDays:    120,
		LikeRate:   0.15,
	}
}

// categoryWeights skews the demo toward the busier sections of a tech blog.
var categoryWeights = map[string]int{
	"Technology":            3,
	"Programming":           3,
	"Web Development":       2,
	"DevOps":                2,
	"AI & Machine Learning": 2,
	"Career":                1,
	"Jobs":                  1,
	"Mobile Development":    1,
	"Cybersecurity":         1,
	"Data Science":          1,
}

var tagPools = map[string][]string{
	"Technology":            {"Hardware", "Open Source", "Linux", "Chips", "Gadgets"},
	"Programming":           {"Go", "Rust", "Python", "TypeScript", "Testing", "Concurrency"},
	"Web Development":       {"React", "CSS", "Accessibility", "Performance", "Next.js"},
	"DevOps":                {"Kubernetes", "Docker", "CI/CD", "Terraform", "Observability"},
	"AI & Machine Learning": {"LLM", "PyTorch", "RAG", "Embeddings", "MLOps"},
	"Career":                {"Interviews", "Remote", "Mentoring", "Leadership"},
	"Jobs":                  {"Hiring", "Salaries", "Remote"},
	"Mobile Development":    {"Swift", "Kotlin", "Flutter", "React Native"},
	"Cybersecurity":         {"OWASP", "Zero Trust", "CVE", "Cryptography"},
	"Data Science":          {"Pandas", "SQL", "Visualization", "Statistics"},
}

// computeCounts splits total across categories in proportion to weights.
// Remainders go to the heaviest categories first, in taxonomy order.
func computeCounts(total int, categories []string, weights map[string]int) map[string]int {
	counts := make(map[string]int, len(categories))
	if total <= 0 || len(categories) == 0 {
		return counts
	}
	sum := 0
	for _, c := range categories {
		sum += weightOf(weights, c)
	}
	assigned := 0
	for _, c := range categories {
		n := total * weightOf(weights, c) / sum
		counts[c] = n
		assigned += n
	}
	for remaining := total - assigned; remaining > 0; {
		for w := maxWeight(weights, categories); w > 0 && remaining > 0; w-- {
			for _, c := range categories {
				if remaining == 0 {
					break
				}
				if weightOf(weights, c) == w {
					counts[c]++
					remaining--
				}
			}
		}
	}
	return counts
}

func weightOf(weights map[string]int, category string) int {
	if w, ok := weights[category]; ok && w > 0 {
		return w
	}
	return 1
}

func maxWeight(weights map[string]int, categories []string) int {
	best := 1
	for _, c := range categories {
		if w := weightOf(weights, c); w > best {
			best = w
		}
	}
	return best
}

// Run populates the database with demo authors, readers, posts and likes.
// A database that already has posts is left alone unless ShouldClean is set.
func Run(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	log := middleware.Logger.With(slog.String("component", "seed"))

	if opts.ShouldClean {
		if err := Clean(ctx, db); err != nil {
			return nil, fmt.Errorf("clean: %w", err)
		}
	} else {
		var existing int64
		if err := db.WithContext(ctx).Model(&models.Post{}).Count(&existing).Error; err != nil {
			return nil, fmt.Errorf("count posts: %w", err)
		}
		if existing > 0 {
			log.InfoContext(ctx, "posts already present, skipping seed", slog.Int64("posts", existing))
			return &Result{Skipped: true}, nil
		}
	}

	f := NewFactory(db, opts)
	res := &Result{}

	authors := max(opts.NumAuthors, 1)
	for i := 0; i < authors; i++ {
		u, err := f.CreateUser(ctx, func(u *models.User) {
			u.IsAdmin = true
			u.Username = fmt.Sprintf("editor%d", i+1)
			u.Email = fmt.Sprintf("editor%d@tribune.local", i+1)
		})
		if err != nil {
			return nil, fmt.Errorf("create author: %w", err)
		}
		res.Authors = append(res.Authors, u)
	}
	for i := 0; i < opts.NumUsers; i++ {
		u, err := f.CreateUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("create reader: %w", err)
		}
		res.Readers = append(res.Readers, u)
	}
	log.InfoContext(ctx, "users created", slog.Int("authors", len(res.Authors)), slog.Int("readers", len(res.Readers)))

	counts := computeCounts(opts.NumPosts, models.DefaultCategories, categoryWeights)
	for _, category := range models.DefaultCategories {
		for i := 0; i < counts[category]; i++ {
			author := res.Authors[f.rng.Intn(len(res.Authors))]
			res.Posts = append(res.Posts, f.BuildPost(author, category))
		}
	}
	if err := f.CreatePostsBatch(ctx, res.Posts); err != nil {
		return nil, fmt.Errorf("create posts: %w", err)
	}
	log.InfoContext(ctx, "posts created", slog.Int("posts", len(res.Posts)))

	for _, post := range res.Posts {
		for _, reader := range res.Readers {
			if f.rng.Float64() >= opts.LikeRate {
				continue
			}
			if err := f.CreateLike(ctx, reader, post); err != nil {
				return nil, fmt.Errorf("create like: %w", err)
			}
			res.Likes++
		}
	}
	if err := RecountLikes(ctx, db); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "seed complete", slog.Int("likes", res.Likes))
	return res, nil
}

// RecountLikes sets every post's like counter from the likes table.
func RecountLikes(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).Exec(
		"UPDATE posts SET likes = (SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id)",
	).Error
	if err != nil {
		return fmt.Errorf("recount likes: %w", err)
	}
	return nil
}

// Clean removes all likes, posts, subscribers and users.
func Clean(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []interface{}{&models.Like{}, &models.Post{}, &models.Subscriber{}, &models.User{}} {
		if err := tx.Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
