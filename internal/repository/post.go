package repository

import (
	"context"
	"log/slog"

	"tribune/internal/database"
	"tribune/internal/models"
	"tribune/internal/observability"

	"gorm.io/gorm"
)

// PostChanges lists the fields an edit sets; nil fields are left alone.
type PostChanges struct {
	Title    *string
	Content  *string
	Excerpt  *string
	Category *string
	ImageURL *string
	Tags     *[]string
}

// Empty reports whether the edit touches nothing.
func (c PostChanges) Empty() bool {
	return c.Title == nil && c.Content == nil && c.Excerpt == nil &&
		c.Category == nil && c.ImageURL == nil && c.Tags == nil
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	List(ctx context.Context) ([]*models.Post, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, id string, changes PostChanges) (*models.Post, error)
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
	ToggleLike(ctx context.Context, userID uint, postID string) (liked bool, likes int64, err error)
	LikedPostIDs(ctx context.Context, userID uint) ([]string, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, log: observability.NewRepoLogger("posts")}
}

// List returns every post, newest first.
func (r *postRepository) List(ctx context.Context) ([]*models.Post, error) {
	defer observability.TrackQuery("list", "posts")()

	var posts []*models.Post
	if err := readDB(r.db).WithContext(ctx).
		Order("published_at DESC").
		Order("id ASC").
		Find(&posts).Error; err != nil {
		r.log.LogError(ctx, "list", err)
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackQuery("get", "posts")()

	var post models.Post
	if err := readDB(r.db).WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		r.log.LogError(ctx, "create", err)
		if database.IsUniqueViolation(err) {
			return models.NewConflictError("Post already exists")
		}
		return models.NewInternalError(err)
	}
	r.log.LogWrite(ctx, "create", slog.String("post_id", post.ID))
	return nil
}

func (r *postRepository) Update(ctx context.Context, id string, changes PostChanges) (*models.Post, error) {
	defer observability.TrackQuery("update", "posts")()

	if changes.Empty() {
		return r.GetByID(ctx, id)
	}

	var (
		values  models.Post
		columns []string
	)
	if changes.Title != nil {
		values.Title = *changes.Title
		columns = append(columns, "title")
	}
	if changes.Content != nil {
		values.Content = *changes.Content
		columns = append(columns, "content")
	}
	if changes.Excerpt != nil {
		values.Excerpt = *changes.Excerpt
		columns = append(columns, "excerpt")
	}
	if changes.Category != nil {
		values.Category = *changes.Category
		columns = append(columns, "category")
	}
	if changes.ImageURL != nil {
		values.ImageURL = *changes.ImageURL
		columns = append(columns, "image_url")
	}
	if changes.Tags != nil {
		values.Tags = *changes.Tags
		columns = append(columns, "tags")
	}

	result := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		Select(columns).
		Updates(&values)
	if result.Error != nil {
		r.log.LogError(ctx, "update", result.Error)
		return nil, models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, models.NewNotFoundError("Post", id)
	}
	r.log.LogWrite(ctx, "update", slog.String("post_id", id), slog.Any("columns", columns))

	var post models.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

// Delete removes the post and its like relations.
func (r *postRepository) Delete(ctx context.Context, id string) error {
	defer observability.TrackQuery("delete", "posts")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Post{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	if err != nil {
		if isAppError(err) {
			return err
		}
		r.log.LogError(ctx, "delete", err)
		return models.NewInternalError(err)
	}
	r.log.LogWrite(ctx, "delete", slog.String("post_id", id))
	return nil
}

// IncrementViews atomically adds one view and returns the new total.
func (r *postRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	defer observability.TrackQuery("increment_views", "posts")()

	result := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if result.Error != nil {
		r.log.LogError(ctx, "increment_views", result.Error)
		return 0, models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, models.NewNotFoundError("Post", id)
	}

	var views int64
	if err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		Pluck("views", &views).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return views, nil
}

// ToggleLike flips userID's like on postID. The relation write and the
// stored count run in one transaction; the count is recomputed from the
// likes table so it always equals the number of relations.
func (r *postRepository) ToggleLike(ctx context.Context, userID uint, postID string) (bool, int64, error) {
	defer observability.TrackQuery("toggle_like", "likes")()

	var (
		liked bool
		likes int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return models.NewNotFoundError("Post", postID)
		}

		removed := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			if err := tx.Create(&models.Like{UserID: userID, PostID: postID}).Error; err != nil {
				return err
			}
			liked = true
		}

		if err := tx.Model(&models.Like{}).Where("post_id = ?", postID).Count(&likes).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).
			Where("id = ?", postID).
			UpdateColumn("likes", likes).Error
	})
	if err != nil {
		if isAppError(err) {
			return false, 0, err
		}
		r.log.LogError(ctx, "toggle_like", err)
		if database.IsUniqueViolation(err) {
			return false, 0, models.NewConflictError("Like changed concurrently, retry")
		}
		return false, 0, models.NewInternalError(err)
	}

	r.log.LogWrite(ctx, "toggle_like",
		slog.String("post_id", postID),
		slog.Uint64("user_id", uint64(userID)),
		slog.Bool("liked", liked),
		slog.Int64("likes", likes),
	)
	return liked, likes, nil
}

func (r *postRepository) LikedPostIDs(ctx context.Context, userID uint) ([]string, error) {
	defer observability.TrackQuery("liked_ids", "likes")()

	var ids []string
	if err := readDB(r.db).WithContext(ctx).
		Model(&models.Like{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Pluck("post_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
