package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/auth"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/blob"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/storage"
)

const (
	// DefaultSessionCookieName is used when no cookie name is configured.
	DefaultSessionCookieName = "mobile_core_session"

	// DefaultMaxFiles caps a multi-file upload when the client does not
	// send an X-Max-Files header.
	DefaultMaxFiles = 10
)

// Handler bundles the dependencies shared by all HTTP endpoints.
type Handler struct {
	Store   storage.Repository
	Tokens  *auth.TokenIssuer
	Objects blob.Client
	Logger  *slog.Logger

	SessionCookieName   string
	SessionCookieDomain string
	SessionCookiePolicy SessionCookiePolicy

	ImagePolicy     UploadPolicy
	VideoPolicy     UploadPolicy
	MaxFilesDefault int

	// StagingDir receives uploads while size limits are checked. Empty
	// means a directory under os.TempDir().
	StagingDir string

	stagingOnce sync.Once
	stagingDir  string
}

func NewHandler(store storage.Repository, tokens *auth.TokenIssuer, objects blob.Client) *Handler {
	return &Handler{
		Store:       store,
		Tokens:      tokens,
		Objects:     objects,
		ImagePolicy: DefaultImagePolicy(),
		VideoPolicy: DefaultVideoPolicy(),
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) maxFilesDefault() int {
	if h.MaxFilesDefault > 0 {
		return h.MaxFilesDefault
	}
	return DefaultMaxFiles
}

// Root answers the bare greeting endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from Mobile Core API! 🚀"})
}

// Health reports whether the service's collaborators are reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	services := map[string]string{}
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			status = "degraded"
			services["database"] = "unreachable"
		} else {
			services["database"] = "ok"
		}
	}
	if h.Objects != nil && h.Objects.Enabled() {
		services["objectStorage"] = "ok"
	} else {
		services["objectStorage"] = "disabled"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"services": services,
	})
}
