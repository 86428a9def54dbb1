package server

import (
	"tribune/internal/feed"
	"tribune/internal/models"
	"tribune/internal/notifications"
	"tribune/internal/service"
	"tribune/internal/session"

	"github.com/gofiber/fiber/v2"
)

type categorySummary struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// GetCategories handles GET /api/categories. Every configured category is
// listed, including empty ones.
func (s *Server) GetCategories(c *fiber.Ctx) error {
	counts := s.posts.Categories()
	out := make([]categorySummary, 0, len(s.categories.List()))
	for _, name := range s.categories.List() {
		out = append(out, categorySummary{Name: name, Slug: models.Slug(name), Count: counts[name]})
	}
	return c.JSON(out)
}

// GetCategoryPosts handles GET /api/categories/:slug/posts
func (s *Server) GetCategoryPosts(c *fiber.Ctx) error {
	name, ok := s.categories.FromSlug(c.Params("slug"))
	if !ok {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Category", c.Params("slug")))
	}
	posts, err := s.posts.ByCategory(c.UserContext(), viewerID(c), name)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"category": categorySummary{Name: name, Slug: models.Slug(name), Count: len(posts)},
		"posts":    page(posts, parsePagination(c, 20)),
		"total":    len(posts),
	})
}

// GetPosts handles GET /api/posts?q=&category=&sort=
func (s *Server) GetPosts(c *fiber.Ctx) error {
	q := feed.Query{
		Search:   c.Query("q"),
		Category: c.Query("category"),
		Sort:     feed.Sort(c.Query("sort")),
	}.Normalize()

	posts, err := s.posts.Feed(c.UserContext(), viewerID(c), q)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"posts": page(posts, parsePagination(c, 50)),
		"total": len(posts),
		"query": q,
	})
}

// GetFeaturedPost handles GET /api/posts/featured
func (s *Server) GetFeaturedPost(c *fiber.Ctx) error {
	featured := s.posts.Featured()
	if featured == nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Post", "featured"))
	}
	post, err := s.posts.GetByID(c.UserContext(), viewerID(c), featured.ID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.posts.GetByID(c.UserContext(), viewerID(c), postID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"post":    post,
		"related": s.posts.Related(post, relatedPostCount),
	})
}

// RecordView handles POST /api/posts/:id/view. Repeat views in the same
// browsing session are accepted but not counted. An unknown id is never
// counted and the lookup below turns it into a 404.
func (s *Server) RecordView(c *fiber.Ctx) error {
	id := postID(c)
	counted := s.posts.RecordView(c.UserContext(), session.FromContext(c), id)
	post, err := s.posts.GetByID(c.UserContext(), viewerID(c), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	if counted {
		s.publishPostEvent(c.UserContext(), notifications.EventPostViewed, id, fiber.Map{"views": post.Views})
	}
	return c.JSON(fiber.Map{
		"post_id": id,
		"counted": counted,
		"views":   post.Views,
	})
}

// ToggleLike handles POST /api/posts/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	res, err := s.posts.ToggleLike(c.UserContext(), viewerID(c), postID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	s.publishPostEvent(c.UserContext(), notifications.EventPostReactionUpdated, res.PostID, fiber.Map{"likes": res.Likes})
	return c.JSON(res)
}

// GetMyLikes handles GET /api/me/likes
func (s *Server) GetMyLikes(c *fiber.Ctx) error {
	posts, err := s.posts.LikedPosts(c.UserContext(), viewerID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

type postRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Excerpt  string   `json:"excerpt"`
	Category string   `json:"category"`
	Author   string   `json:"author"`
	ImageURL string   `json:"image_url"`
	Tags     []string `json:"tags"`
	TagList  *string  `json:"tag_list"`
}

// CreatePost handles POST /api/admin/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	in := service.CreatePostInput{
		UserID:   viewerID(c),
		Title:    req.Title,
		Content:  req.Content,
		Excerpt:  req.Excerpt,
		Category: req.Category,
		Author:   req.Author,
		ImageURL: req.ImageURL,
		Tags:     req.Tags,
	}
	if req.TagList != nil {
		in.TagList = *req.TagList
	}

	post, err := s.postService.CreatePost(c.UserContext(), in)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	s.publishPostEvent(c.UserContext(), notifications.EventPostCreated, post.ID, post)
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/admin/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		UserID:   viewerID(c),
		PostID:   postID(c),
		Title:    req.Title,
		Content:  req.Content,
		Excerpt:  req.Excerpt,
		Category: req.Category,
		ImageURL: req.ImageURL,
		Tags:     req.Tags,
		TagList:  req.TagList,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	s.publishPostEvent(c.UserContext(), notifications.EventPostUpdated, post.ID, post)
	return c.JSON(post)
}

// DeletePost handles DELETE /api/admin/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id := postID(c)
	if err := s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: viewerID(c),
		PostID: id,
	}); err != nil {
		return models.RespondWithAppError(c, err)
	}
	s.publishPostEvent(c.UserContext(), notifications.EventPostDeleted, id, nil)
	return c.SendStatus(fiber.StatusNoContent)
}
