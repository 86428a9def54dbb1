package models

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCategories is the built-in taxonomy, in display order.
var DefaultCategories = []string{
	"Technology",
	"Programming",
	"Career",
	"Jobs",
	"AI & Machine Learning",
	"Web Development",
	"Mobile Development",
	"DevOps",
	"Cybersecurity",
	"Data Science",
}

// CategorySet is an ordered, fixed set of category names. Membership is
// case-sensitive; slugs are matched case-insensitively.
type CategorySet struct {
	names  []string
	lookup map[string]struct{}
	slugs  map[string]string
}

// NewCategorySet builds a set from names, dropping blanks and duplicates.
func NewCategorySet(names []string) *CategorySet {
	cs := &CategorySet{
		lookup: make(map[string]struct{}, len(names)),
		slugs:  make(map[string]string, len(names)),
	}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := cs.lookup[n]; ok {
			continue
		}
		cs.names = append(cs.names, n)
		cs.lookup[n] = struct{}{}
		cs.slugs[strings.ToLower(n)] = n
	}
	return cs
}

// Contains reports whether name is in the set, compared exactly.
func (cs *CategorySet) Contains(name string) bool {
	_, ok := cs.lookup[name]
	return ok
}

// List returns the names in display order.
func (cs *CategorySet) List() []string {
	return append([]string(nil), cs.names...)
}

// FromSlug resolves a URL slug (escaped or not) back to its category name.
func (cs *CategorySet) FromSlug(slug string) (string, bool) {
	if unescaped, err := url.PathUnescape(slug); err == nil {
		slug = unescaped
	}
	name, ok := cs.slugs[strings.ToLower(strings.TrimSpace(slug))]
	return name, ok
}

// Slug is the URL path segment for a category.
func Slug(category string) string {
	return url.PathEscape(strings.ToLower(category))
}

type categoriesFile struct {
	Categories []string `yaml:"categories"`
}

// LoadCategories reads a YAML taxonomy of the form
//
//	categories:
//	  - Technology
//	  - Programming
//
// An empty path yields DefaultCategories.
func LoadCategories(path string) (*CategorySet, error) {
	if path == "" {
		return NewCategorySet(DefaultCategories), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	var f categoriesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse categories file: %w", err)
	}
	cs := NewCategorySet(f.Categories)
	if len(cs.names) == 0 {
		return nil, fmt.Errorf("categories file %s defines no categories", path)
	}
	return cs, nil
}
