package service

import (
	"context"
	"strings"

	"tribune/internal/models"
	"tribune/internal/repository"
	"tribune/internal/validation"
)

// PostWriter is the subset of the post store that admin edits go through.
type PostWriter interface {
	Add(ctx context.Context, post *models.Post) (*models.Post, error)
	Update(ctx context.Context, id string, changes repository.PostChanges) (*models.Post, error)
	Delete(ctx context.Context, id string) error
}

// UserLookup resolves the acting user.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// PostService validates and applies administrator post edits.
type PostService struct {
	posts      PostWriter
	users      UserLookup
	categories *models.CategorySet
}

// CreatePostInput is an admin's new post. TagList, when set, is a
// comma-separated alternative to Tags.
type CreatePostInput struct {
	UserID   uint
	Title    string
	Content  string
	Excerpt  string
	Category string
	Author   string
	ImageURL string
	Tags     []string
	TagList  string
}

// UpdatePostInput edits a post. Empty strings leave a field unchanged; Tags
// and TagList replace the tag set only when non-nil.
type UpdatePostInput struct {
	UserID   uint
	PostID   string
	Title    string
	Content  string
	Excerpt  string
	Category string
	ImageURL string
	Tags     []string
	TagList  *string
}

type DeletePostInput struct {
	UserID uint
	PostID string
}

func NewPostService(posts PostWriter, users UserLookup, categories *models.CategorySet) *PostService {
	if categories == nil {
		categories = models.NewCategorySet(models.DefaultCategories)
	}
	return &PostService{posts: posts, users: users, categories: categories}
}

// Categories returns the configured taxonomy.
func (s *PostService) Categories() *models.CategorySet {
	return s.categories
}

func (s *PostService) requireAdmin(ctx context.Context, userID uint) (*models.User, error) {
	if userID == 0 {
		return nil, models.ErrNotAuthenticated
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, models.NewForbiddenError("Administrator access required")
	}
	return user, nil
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	admin, err := s.requireAdmin(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	excerpt := strings.TrimSpace(in.Excerpt)
	if err := validation.ValidatePostText("title", title, validation.MaxTitleLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePostText("content", in.Content, validation.MaxContentLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePostText("excerpt", excerpt, validation.MaxExcerptLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	category := strings.TrimSpace(in.Category)
	if !s.categories.Contains(category) {
		return nil, models.NewValidationError("Category must be one of: " + strings.Join(s.categories.List(), ", "))
	}
	imageURL := strings.TrimSpace(in.ImageURL)
	if err := validation.ValidateImageURL(imageURL); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	author := strings.TrimSpace(in.Author)
	if author == "" {
		author = admin.DisplayName()
	}

	tags := in.Tags
	if in.TagList != "" {
		tags = models.ParseTagList(in.TagList)
	}

	post := &models.Post{
		Title:    title,
		Content:  in.Content,
		Excerpt:  excerpt,
		Category: category,
		AuthorID: admin.ID,
		Author:   author,
		ImageURL: imageURL,
		Tags:     models.NormalizeTags(tags),
	}
	return s.posts.Add(ctx, post)
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	if _, err := s.requireAdmin(ctx, in.UserID); err != nil {
		return nil, err
	}

	var changes repository.PostChanges
	if title := strings.TrimSpace(in.Title); title != "" {
		if err := validation.ValidatePostText("title", title, validation.MaxTitleLength); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		changes.Title = &title
	}
	if strings.TrimSpace(in.Content) != "" {
		content := in.Content
		if err := validation.ValidatePostText("content", content, validation.MaxContentLength); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		changes.Content = &content
	}
	if excerpt := strings.TrimSpace(in.Excerpt); excerpt != "" {
		if err := validation.ValidatePostText("excerpt", excerpt, validation.MaxExcerptLength); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		changes.Excerpt = &excerpt
	}
	if category := strings.TrimSpace(in.Category); category != "" {
		if !s.categories.Contains(category) {
			return nil, models.NewValidationError("Category must be one of: " + strings.Join(s.categories.List(), ", "))
		}
		changes.Category = &category
	}
	if imageURL := strings.TrimSpace(in.ImageURL); imageURL != "" {
		if err := validation.ValidateImageURL(imageURL); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		changes.ImageURL = &imageURL
	}
	switch {
	case in.TagList != nil:
		tags := models.ParseTagList(*in.TagList)
		changes.Tags = &tags
	case in.Tags != nil:
		tags := models.NormalizeTags(in.Tags)
		changes.Tags = &tags
	}

	return s.posts.Update(ctx, in.PostID, changes)
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	if _, err := s.requireAdmin(ctx, in.UserID); err != nil {
		return err
	}
	return s.posts.Delete(ctx, in.PostID)
}
