package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"trims and drops blanks", []string{" go ", "", "  "}, []string{"go"}},
		{"dedupes case-insensitively", []string{"React", "react", "REACT", "Go"}, []string{"React", "Go"}},
		{"keeps order", []string{"b", "a", "c"}, []string{"b", "a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTags(tt.in))
		})
	}
}

func TestParseTagList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ParseTagList("a, b,,c"))
	assert.Empty(t, ParseTagList("  "))
}

func TestCategorySet(t *testing.T) {
	cs := NewCategorySet(DefaultCategories)

	assert.True(t, cs.Contains("Web Development"))
	assert.False(t, cs.Contains("web development"))
	assert.Len(t, cs.List(), 10)
	assert.Equal(t, "Technology", cs.List()[0])

	slug := Slug("AI & Machine Learning")
	assert.Equal(t, "ai%20&%20machine%20learning", slug)
	name, ok := cs.FromSlug(slug)
	require.True(t, ok)
	assert.Equal(t, "AI & Machine Learning", name)

	name, ok = cs.FromSlug("devops")
	require.True(t, ok)
	assert.Equal(t, "DevOps", name)

	_, ok = cs.FromSlug("gardening")
	assert.False(t, ok)
}

func TestLoadCategories(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cs, err := LoadCategories("")
		require.NoError(t, err)
		assert.Equal(t, DefaultCategories, cs.List())
	})

	t.Run("yaml override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "categories.yml")
		require.NoError(t, os.WriteFile(path, []byte("categories:\n  - Go\n  - Rust\n  - Go\n"), 0o600))
		cs, err := LoadCategories(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Go", "Rust"}, cs.List())
	})

	t.Run("empty file rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "categories.yml")
		require.NoError(t, os.WriteFile(path, []byte("categories: []\n"), 0o600))
		_, err := LoadCategories(path)
		assert.Error(t, err)
	})
}

func TestPostCloneIsIndependent(t *testing.T) {
	p := &Post{ID: "a", Tags: []string{"go"}}
	cp := p.Clone()
	cp.Tags[0] = "rust"
	cp.Views = 9
	assert.Equal(t, "go", p.Tags[0])
	assert.Zero(t, p.Views)
	assert.Nil(t, (*Post)(nil).Clone())
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FullName: "Ada Lovelace", Username: "ada"}).DisplayName())
	assert.Equal(t, "ada", (&User{Username: "ada"}).DisplayName())
	assert.Equal(t, "Anonymous", (&User{}).DisplayName())
	assert.Equal(t, "Anonymous", (*User)(nil).DisplayName())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewNotFoundError("Post", "x"), fiber.StatusNotFound},
		{NewValidationError("bad"), fiber.StatusBadRequest},
		{NewUnauthorizedError("no"), fiber.StatusUnauthorized},
		{NewForbiddenError("no"), fiber.StatusForbidden},
		{NewConflictError("dup"), fiber.StatusConflict},
		{NewInternalError(errors.New("db")), fiber.StatusInternalServerError},
		{errors.New("plain"), fiber.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NewConflictError("dup")), fiber.StatusConflict},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestErrNotAuthenticatedMatchesWrapped(t *testing.T) {
	err := fmt.Errorf("toggle like: %w", ErrNotAuthenticated)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.NotErrorIs(t, NewUnauthorizedError("other"), ErrNotAuthenticated)
}
