package service

import (
	"bytes"
	"context"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tribune/internal/config"
	"tribune/internal/models"
	"tribune/internal/testutil"
	"tribune/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageServiceUploadWritesVariants(t *testing.T) {
	cfg := &config.Config{ImageUploadDir: t.TempDir(), ImageMaxUploadSizeMB: 1}
	svc := NewImageService(cfg)

	content := testutil.TinyPNG(t, 1600, 900)
	img, err := svc.Upload(context.Background(), UploadImageInput{
		UserID:      42,
		Filename:    "cover.png",
		ContentType: "image/png",
		Content:     content,
	})
	require.NoError(t, err)
	assert.Len(t, img.Hash, 64)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, 1600, img.Width)
	assert.Equal(t, 900, img.Height)
	assert.True(t, strings.HasPrefix(img.URL, validation.UploadPathPrefix))
	assert.NoError(t, validation.ValidateImageURL(img.URL))

	for _, rel := range []string{"original.png", "cover.webp", "thumbnail.webp", "cover.jpg"} {
		_, statErr := os.Stat(filepath.Join(cfg.ImageUploadDir, img.Hash, rel))
		assert.NoError(t, statErr, rel)
	}

	f, err := os.Open(filepath.Join(cfg.ImageUploadDir, img.Hash, "cover.jpg"))
	require.NoError(t, err)
	defer f.Close()
	cover, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.LessOrEqual(t, cover.Width, CoverWidth)
	assert.InDelta(t, CoverRatio, float64(cover.Width)/float64(cover.Height), 0.05)
}

func TestImageServiceUploadIsContentAddressed(t *testing.T) {
	svc := NewImageService(&config.Config{ImageUploadDir: t.TempDir()})
	content := testutil.TinyPNG(t, 40, 20)

	first, err := svc.Upload(context.Background(), UploadImageInput{UserID: 1, Filename: "a.png", Content: content})
	require.NoError(t, err)
	second, err := svc.Upload(context.Background(), UploadImageInput{UserID: 2, Filename: "b.png", Content: content})
	require.NoError(t, err)
	assert.Equal(t, first.URL, second.URL)
	assert.Equal(t, first.Variants, second.Variants)
}

func TestImageServicePublicBaseURL(t *testing.T) {
	svc := NewImageService(&config.Config{ImageUploadDir: t.TempDir(), PublicBaseURL: "https://cdn.example.com/"})
	img, err := svc.Upload(context.Background(), UploadImageInput{UserID: 1, Content: testutil.TinyPNG(t, 8, 8)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(img.URL, "https://cdn.example.com/uploads/"), img.URL)
}

func TestImageServiceUploadValidation(t *testing.T) {
	svc := NewImageService(&config.Config{ImageUploadDir: t.TempDir(), ImageMaxUploadSizeMB: 1})
	ctx := context.Background()

	tests := []struct {
		name   string
		input  UploadImageInput
		status int
	}{
		{"anonymous", UploadImageInput{Content: testutil.TinyPNG(t, 2, 2)}, http.StatusUnauthorized},
		{"empty", UploadImageInput{UserID: 1}, http.StatusBadRequest},
		{"not an image", UploadImageInput{UserID: 1, ContentType: "text/plain", Content: []byte("not an image")}, http.StatusBadRequest},
		{"too large", UploadImageInput{UserID: 1, Content: bytes.Repeat([]byte{'a'}, 2*1024*1024)}, http.StatusBadRequest},
		{"truncated png", UploadImageInput{UserID: 1, Content: testutil.TinyPNG(t, 4, 4)[:20]}, http.StatusBadRequest},
		{"mismatched type", UploadImageInput{UserID: 1, ContentType: "image/jpeg", Content: testutil.TinyPNG(t, 4, 4)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.status, models.StatusFor(err))
		})
	}
}

func TestImageServiceDefaults(t *testing.T) {
	svc := NewImageService(nil)
	assert.Equal(t, DefaultImageUploadDir, svc.UploadDir())
	assert.Equal(t, int64(DefaultImageMaxUploadSizeMB*1024*1024), svc.MaxUploadSizeBytes())
}

func TestCoverCrop(t *testing.T) {
	x, y, w, h := coverCrop(1910, 2000)
	assert.Equal(t, 0, x)
	assert.Equal(t, 1910, w)
	assert.Equal(t, 1000, h)
	assert.Equal(t, 500, y)

	x, _, w, h = coverCrop(4000, 1000)
	assert.Equal(t, 1910, w)
	assert.Equal(t, 1000, h)
	assert.Equal(t, (4000-1910)/2, x)
}

func TestResizeToFitKeepsSmallImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	assert.Same(t, image.Image(src), resizeToFit(src, 100, 100))

	big := image.NewRGBA(image.Rect(0, 0, 800, 400))
	out := resizeToFit(big, 400, 400)
	assert.Equal(t, 400, out.Bounds().Dx())
	assert.Equal(t, 200, out.Bounds().Dy())
}

func TestEncodeJPEGAndContentTypes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	data, err := encodeJPEG(src, JPEGQuality)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", http.DetectContentType(data))

	assert.True(t, isMatchingContentType("image/jpg", "image/jpeg"))
	assert.False(t, isMatchingContentType("image/png", "image/jpeg"))
	assert.Equal(t, "image/png", normalizeContentType("IMAGE/PNG; charset=binary"))
	assert.Equal(t, ".jpg", extensionFor("jpeg"))
	assert.Equal(t, "", decodedFormatToMime("bmp"))
}
