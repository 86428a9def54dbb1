// Package feed derives the visible, ordered post list from the full post
// collection. Derivation is pure; Cache memoizes it per store version.
package feed

import (
	"sort"
	"strings"

	"tribune/internal/models"
)

// Sort is a feed ordering.
type Sort string

// Supported orderings.
const (
	SortLatest   Sort = "latest"
	SortPopular  Sort = "popular"
	SortTrending Sort = "trending"
)

// ParseSort maps raw input to a Sort; anything unknown is SortLatest.
func ParseSort(raw string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(raw))) {
	case SortPopular:
		return SortPopular
	case SortTrending:
		return SortTrending
	default:
		return SortLatest
	}
}

// Query selects and orders posts.
type Query struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	Sort     Sort   `json:"sort"`
}

// Normalize trims the search term, maps "all" to no category filter and
// resolves the sort mode.
func (q Query) Normalize() Query {
	q.Search = strings.TrimSpace(q.Search)
	q.Category = strings.TrimSpace(q.Category)
	if strings.EqualFold(q.Category, "all") {
		q.Category = ""
	}
	q.Sort = ParseSort(string(q.Sort))
	return q
}

// Matches reports whether search (already lower-cased and trimmed) is a
// substring of any searchable field. An empty search matches everything.
func Matches(p *models.Post, search string) bool {
	if search == "" {
		return true
	}
	if containsFold(p.Title, search) ||
		containsFold(p.Excerpt, search) ||
		containsFold(p.Content, search) ||
		containsFold(p.Category, search) ||
		containsFold(p.Author, search) {
		return true
	}
	for _, tag := range p.Tags {
		if containsFold(tag, search) {
			return true
		}
	}
	return false
}

func containsFold(field, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(field), lowerNeedle)
}

// Derive filters and orders posts for q. The input slice and its posts are
// never modified; the result is a new slice whose elements point at the
// input posts. Ties keep input order.
func Derive(posts []*models.Post, q Query) []*models.Post {
	q = q.Normalize()
	search := strings.ToLower(q.Search)

	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if p == nil {
			continue
		}
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if !Matches(p, search) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, less(out, q.Sort))
	return out
}

func less(posts []*models.Post, s Sort) func(i, j int) bool {
	switch s {
	case SortPopular:
		return func(i, j int) bool { return posts[i].Views > posts[j].Views }
	case SortTrending:
		return func(i, j int) bool { return posts[i].Likes > posts[j].Likes }
	default:
		return func(i, j int) bool { return posts[i].PublishedAt.After(posts[j].PublishedAt) }
	}
}

// Featured returns the most-viewed post, or nil for an empty collection.
// On a tie the later post wins.
func Featured(posts []*models.Post) *models.Post {
	var best *models.Post
	for _, p := range posts {
		if p == nil {
			continue
		}
		if best == nil || best.Views <= p.Views {
			best = p
		}
	}
	return best
}

// Related returns up to n other posts from post's category, in input order.
func Related(posts []*models.Post, post *models.Post, n int) []*models.Post {
	if post == nil || n <= 0 {
		return []*models.Post{}
	}
	out := make([]*models.Post, 0, n)
	for _, p := range posts {
		if p == nil || p.ID == post.ID || p.Category != post.Category {
			continue
		}
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	return out
}
