package server

import "net/http"

const (
	defaultFrameAncestors     = "'none'"
	defaultFrameOptions       = "DENY"
	defaultReferrerPolicy     = "no-referrer"
	defaultPermissionsPolicy  = "camera=(), microphone=(), geolocation=()"
	defaultContentTypeOptions = "nosniff"
)

// SecurityConfig controls the hardening headers stamped onto every response.
// The API serves JSON only, so the default Content-Security-Policy denies
// every resource class outright instead of allowing same-origin scripts and
// styles that nothing here emits. Zero-valued fields fall back to these
// defaults.
type SecurityConfig struct {
	ContentSecurityPolicy string
	FrameAncestors        string
	FrameOptions          string
	ReferrerPolicy        string
	PermissionsPolicy     string
	ContentTypeOptions    string
}

func (cfg SecurityConfig) withDefaults() SecurityConfig {
	cfg.FrameAncestors = fallbackHeader(cfg.FrameAncestors, defaultFrameAncestors)
	cfg.FrameOptions = fallbackHeader(cfg.FrameOptions, defaultFrameOptions)
	cfg.ReferrerPolicy = fallbackHeader(cfg.ReferrerPolicy, defaultReferrerPolicy)
	cfg.PermissionsPolicy = fallbackHeader(cfg.PermissionsPolicy, defaultPermissionsPolicy)
	cfg.ContentTypeOptions = fallbackHeader(cfg.ContentTypeOptions, defaultContentTypeOptions)
	cfg.ContentSecurityPolicy = fallbackHeader(cfg.ContentSecurityPolicy, apiContentSecurityPolicy(cfg.FrameAncestors))
	return cfg
}

func fallbackHeader(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// apiContentSecurityPolicy is the lockdown policy for a JSON-only surface:
// no subresources of any kind load from these responses, and only the
// frame-ancestors directive remains configurable for deployments that embed
// upload status pages elsewhere.
func apiContentSecurityPolicy(frameAncestors string) string {
	return "default-src 'none'; " +
		"frame-ancestors " + fallbackHeader(frameAncestors, defaultFrameAncestors) + "; " +
		"base-uri 'none'; " +
		"form-action 'none'"
}

func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	effective := cfg.withDefaults()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("Content-Security-Policy", effective.ContentSecurityPolicy)
		headers.Set("X-Frame-Options", effective.FrameOptions)
		headers.Set("X-Content-Type-Options", effective.ContentTypeOptions)
		headers.Set("Referrer-Policy", effective.ReferrerPolicy)
		headers.Set("Permissions-Policy", effective.PermissionsPolicy)

		next.ServeHTTP(w, r)
	})
}
