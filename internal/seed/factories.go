package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"tribune/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by Run and by tests.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	rng   *rand.Rand
	// password hash shared by every generated account
	passwordHash string
	seq          int
}

// NewFactory creates a new Factory bound to the provided Gorm DB. A zero
// opts.RandSeed picks a time-based seed.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		db:    db,
		opts:  opts,
		faker: gofakeit.New(seed),
		rng:   rand.New(rand.NewSource(seed)), // #nosec G404
	}
}

func (f *Factory) hashPassword() (string, error) {
	if f.passwordHash != "" {
		return f.passwordHash, nil
	}
	if f.opts.SkipBcrypt {
		f.passwordHash = DemoPassword
		return f.passwordHash, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	f.passwordHash = string(hashed)
	return f.passwordHash, nil
}

// CreateUser constructs and persists a sample reader. Optional override
// functions may modify the generated user before saving.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.hashPassword()
	if err != nil {
		return nil, err
	}
	f.seq++
	first, last := f.faker.FirstName(), f.faker.LastName()
	username := fmt.Sprintf("%s%d", strings.ToLower(first), f.seq)
	if len(username) > 30 {
		username = username[len(username)-30:]
	}

	user := &models.User{
		Username: username,
		FullName: first + " " + last,
		Email:    username + "@example.com",
		Password: hash,
	}
	for _, override := range overrides {
		override(user)
	}

	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a post in category by author but does not persist
// it. Useful for batching.
func (f *Factory) BuildPost(author *models.User, category string, overrides ...func(*models.Post)) *models.Post {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	published := time.Now().UTC().
		Add(-time.Duration(f.rng.Intn(maxDays)) * 24 * time.Hour).
		Add(-time.Duration(f.rng.Intn(24*60)) * time.Minute)

	post := &models.Post{
		Title:       titleFor(f.faker, category),
		Excerpt:     f.faker.Sentence(18),
		Content:     f.faker.Paragraph(4, 5, 14, "\n\n"),
		Category:    category,
		AuthorID:    author.ID,
		Author:      author.DisplayName(),
		PublishedAt: published,
		ImageURL:    fmt.Sprintf("https://picsum.photos/seed/%s/1200/628", f.faker.UUID()),
		Tags:        f.pickTags(category),
		Views:       int64(f.rng.Intn(5000)),
	}
	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePostsBatch persists multiple posts in a single DB call.
func (f *Factory) CreatePostsBatch(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return f.db.WithContext(ctx).CreateInBatches(posts, 100).Error
}

// CreateLike persists a like from user on post. Post.Likes is not touched;
// callers recompute counters once all likes are in.
func (f *Factory) CreateLike(ctx context.Context, user *models.User, post *models.Post) error {
	return f.db.WithContext(ctx).Create(&models.Like{UserID: user.ID, PostID: post.ID}).Error
}

func (f *Factory) pickTags(category string) []string {
	pool := tagPools[category]
	if len(pool) == 0 {
		return []string{strings.ToLower(f.faker.BuzzWord())}
	}
	n := 1 + f.rng.Intn(3)
	picked := make([]string, 0, n)
	for _, i := range f.rng.Perm(len(pool))[:min(n, len(pool))] {
		picked = append(picked, pool[i])
	}
	return models.NormalizeTags(picked)
}

func titleFor(faker *gofakeit.Faker, category string) string {
	switch category {
	case "Programming", "Web Development", "Mobile Development":
		return fmt.Sprintf("%s in practice: %s", faker.ProgrammingLanguage(), capitalize(faker.HackerPhrase()))
	case "Career", "Jobs":
		return fmt.Sprintf("What a %s taught me about %s", strings.ToLower(faker.JobTitle()), strings.ToLower(faker.BuzzWord()))
	default:
		return capitalize(faker.HackerPhrase())
	}
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
