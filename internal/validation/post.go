package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Post field limits.
const (
	MaxTitleLength   = 300
	MaxExcerptLength = 1000
	MaxContentLength = 50000
)

// UploadPathPrefix is the public path images uploaded to this service live under.
const UploadPathPrefix = "/uploads/"

// ValidatePostText checks a required post text field against its limit.
func ValidatePostText(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", field, maxLen)
	}
	return nil
}

// ValidateImageURL accepts an empty value, an absolute http(s) URL, or a
// path under UploadPathPrefix.
func ValidateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, UploadPathPrefix) {
		if strings.Contains(raw, "..") {
			return fmt.Errorf("image URL must not contain path traversal")
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("image URL is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("image URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("image URL must include a host")
	}
	return nil
}
