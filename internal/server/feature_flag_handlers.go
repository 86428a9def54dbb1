package server

import (
	"tribune/internal/featureflags"

	"github.com/gofiber/fiber/v2"
)

type featureFlagView struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
	// Known is false for flags set in FEATURE_FLAGS that nothing reads.
	Known bool `json:"known"`
}

type featureFlagsResponse struct {
	Flags     []featureFlagView `json:"flags"`
	Raw       map[string]string `json:"raw"`
	Evaluated map[string]bool   `json:"evaluated"`
}

// GetFeatureFlags lists the newsletter, live feed and any extra flags, each
// evaluated for the calling admin.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	resp := featureFlagsResponse{
		Flags:     []featureFlagView{},
		Raw:       map[string]string{},
		Evaluated: map[string]bool{},
	}
	if s.featureFlags == nil {
		return c.JSON(resp)
	}

	uid := viewerID(c)
	resp.Raw = s.featureFlags.Raw()
	resp.Evaluated = s.featureFlags.Snapshot(uid)
	for _, name := range s.featureFlags.Names() {
		_, known := featureflags.Defaults[name]
		resp.Flags = append(resp.Flags, featureFlagView{
			Name:    name,
			Value:   resp.Raw[name],
			Enabled: resp.Evaluated[name],
			Known:   known,
		})
	}
	return c.JSON(resp)
}
