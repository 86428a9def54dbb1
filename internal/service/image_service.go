package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"tribune/internal/config"
	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/validation"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultImageUploadDir       = "/tmp/tribune/uploads"
	DefaultImageMaxUploadSizeMB = 5
	CoverWidth                  = 1200
	ThumbnailWidth              = 400
	CoverRatio                  = 1.91
	WebPQuality                 = 75
	JPEGQuality                 = 85
)

// Variant names.
const (
	ImageVariantOriginal  = "original"
	ImageVariantCover     = "cover"
	ImageVariantThumbnail = "thumbnail"
)

type UploadImageInput struct {
	UserID      uint
	Filename    string
	ContentType string
	Content     []byte
}

// UploadedImage describes a stored upload. URL is the canonical cover image
// to put on a post.
type UploadedImage struct {
	Hash     string            `json:"hash"`
	URL      string            `json:"url"`
	Variants map[string]string `json:"variants"`
	MimeType string            `json:"mime_type"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Size     int64             `json:"size_bytes"`
}

// ImageService stores post images in a content-addressed directory tree
// served under validation.UploadPathPrefix.
type ImageService struct {
	uploadDir          string
	publicBaseURL      string
	maxUploadSizeBytes int64
}

func NewImageService(cfg *config.Config) *ImageService {
	uploadDir := DefaultImageUploadDir
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB
	publicBaseURL := ""

	if cfg != nil {
		if cfg.ImageUploadDir != "" {
			uploadDir = cfg.ImageUploadDir
		}
		if cfg.ImageMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
		}
		publicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	}

	return &ImageService{
		uploadDir:          uploadDir,
		publicBaseURL:      publicBaseURL,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// UploadDir is the directory served at validation.UploadPathPrefix.
func (s *ImageService) UploadDir() string {
	return s.uploadDir
}

// MaxUploadSizeBytes is the upload cap.
func (s *ImageService) MaxUploadSizeBytes() int64 {
	return s.maxUploadSizeBytes
}

func (s *ImageService) Upload(ctx context.Context, in UploadImageInput) (*UploadedImage, error) {
	if in.UserID == 0 {
		return nil, models.ErrNotAuthenticated
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detectedType := normalizeContentType(http.DetectContentType(in.Content))
	if !strings.HasPrefix(detectedType, "image/") {
		return nil, models.NewValidationError("Only image files are allowed")
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	sourceMimeType := decodedFormatToMime(format)
	if sourceMimeType == "" {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, sourceMimeType) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	hash := buildImageHash(in.Content)
	originalRel := filepath.ToSlash(filepath.Join(hash, "original"+extensionFor(format)))
	coverRel := filepath.ToSlash(filepath.Join(hash, "cover.webp"))
	thumbRel := filepath.ToSlash(filepath.Join(hash, "thumbnail.webp"))
	fallbackRel := filepath.ToSlash(filepath.Join(hash, "cover.jpg"))

	b := decoded.Bounds()
	result := &UploadedImage{
		Hash:     hash,
		URL:      s.publicURL(coverRel),
		MimeType: sourceMimeType,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Size:     int64(len(in.Content)),
		Variants: map[string]string{
			ImageVariantOriginal:  s.publicURL(originalRel),
			ImageVariantCover:     s.publicURL(coverRel),
			ImageVariantThumbnail: s.publicURL(thumbRel),
			"cover_jpg":           s.publicURL(fallbackRel),
		},
	}

	// Same bytes, same directory: a repeat upload is already on disk.
	if _, statErr := os.Stat(filepath.Join(s.uploadDir, coverRel)); statErr == nil {
		return result, nil
	}

	x, y, w, h := coverCrop(b.Dx(), b.Dy())
	cover := resizeToFit(cropToRect(decoded, b.Min.X+x, b.Min.Y+y, w, h), CoverWidth, CoverWidth)
	thumb := resizeToFit(cover, ThumbnailWidth, ThumbnailWidth)

	coverWebP, err := encodeWebP(cover, WebPQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	thumbWebP, err := encodeWebP(thumb, WebPQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	coverJPG, err := encodeJPEG(cover, JPEGQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	files := []struct {
		rel  string
		data []byte
	}{
		{originalRel, in.Content},
		{thumbRel, thumbWebP},
		{fallbackRel, coverJPG},
		// Written last: its presence marks a complete upload.
		{coverRel, coverWebP},
	}
	var written []string
	for _, f := range files {
		abs := filepath.Join(s.uploadDir, f.rel)
		if err := writeBytesToFile(abs, f.data); err != nil {
			cleanupImageFiles(written)
			return nil, models.NewInternalError(err)
		}
		written = append(written, abs)
	}

	middleware.Logger.InfoContext(ctx, "image uploaded",
		slog.String("hash", hash),
		slog.Uint64("user_id", uint64(in.UserID)),
		slog.String("filename", filepath.Base(in.Filename)),
		slog.Int64("bytes", result.Size),
	)
	return result, nil
}

func (s *ImageService) publicURL(rel string) string {
	return s.publicBaseURL + validation.UploadPathPrefix + rel
}

// coverCrop centres the largest CoverRatio rectangle that fits in w x h.
func coverCrop(w, h int) (x, y, cropW, cropH int) {
	if w <= 0 || h <= 0 {
		return 0, 0, w, h
	}
	ratio := float64(w) / float64(h)
	if ratio > CoverRatio {
		cropH = h
		cropW = int(float64(h) * CoverRatio)
		x = (w - cropW) / 2
	} else {
		cropW = w
		cropH = int(float64(w) / CoverRatio)
		y = (h - cropH) / 2
	}
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}
	return x, y, cropW, cropH
}

func cropToRect(src image.Image, x, y, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, image.Point{X: x, Y: y}, draw.Src)
	return dst
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

func extensionFor(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return ".jpg"
	default:
		return "." + strings.ToLower(format)
	}
}

func buildImageHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func writeBytesToFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func cleanupImageFiles(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
