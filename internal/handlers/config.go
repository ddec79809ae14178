package handlers

import "net/http"

// PublicConfig is the client-safe subset of the server configuration.
type PublicConfig struct {
	Environment  string          `json:"environment"`
	AuthProvider string          `json:"auth_provider"`
	SignInURL    string          `json:"sign_in_url"`
	PostHogKey   string          `json:"posthog_key,omitempty"`
	PostHogHost  string          `json:"posthog_host,omitempty"`
	Features     map[string]bool `json:"features"`
}

// Config exposes public configuration to front-ends.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	features := h.cfg.FeatureFlags
	if features == nil {
		features = map[string]bool{}
	}

	resp := PublicConfig{
		Environment:  h.cfg.Env,
		AuthProvider: h.cfg.AuthProvider,
		SignInURL:    h.cfg.SignInURL,
		Features:     features,
	}
	if h.cfg.PostHogKey != "" {
		resp.PostHogKey = h.cfg.PostHogKey
		resp.PostHogHost = h.cfg.PostHogHost
	}

	h.JSON(w, http.StatusOK, resp)
}
