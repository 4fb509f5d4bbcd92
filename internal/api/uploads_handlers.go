package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/blob"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/observability/metrics"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/storage"
)

// maxFilesHeader lets the caller lower or raise the multi-file cap per
// request. Unparseable or non-positive values fall back to the default.
const maxFilesHeader = "X-Max-Files"

var (
	errNoFilesUploaded = errors.New("No files uploaded. Use 'file' for single or 'files' for multiple uploads.")
	errUploadFailed    = errors.New("File upload failed")
	errMediaInsert     = errors.New("Failed to save file details to database")
	errUserNotFound    = errors.New("User not found")
)

type uploadedFileResponse struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Company  string `json:"company"`
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
}

type uploadResponse struct {
	Message string                 `json:"message"`
	Files   []uploadedFileResponse `json:"files"`
}

// stagedFile is an accepted multipart file after streaming through the size
// check and into the bucket.
type stagedFile struct {
	originalName string
	contentType  string
	size         int64
	object       blob.Object
}

// ImageUpload accepts one or more image files for the caller's company.
func (h *Handler) ImageUpload(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.imagePolicy())
}

// VideoUpload accepts one or more video files for the caller's company.
func (h *Handler) VideoUpload(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.videoPolicy())
}

func (h *Handler) imagePolicy() UploadPolicy {
	if h.ImagePolicy.MaxFileBytes > 0 {
		return h.ImagePolicy
	}
	return DefaultImagePolicy()
}

func (h *Handler) videoPolicy() UploadPolicy {
	if h.VideoPolicy.MaxFileBytes > 0 {
		return h.VideoPolicy
	}
	return DefaultVideoPolicy()
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request, policy UploadPolicy) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	actor, ok := h.requireAuthenticatedAccount(w, r)
	if !ok {
		return
	}
	// The guard resolved the account already, but it may have been deleted
	// between then and now; the upload path reports that as a 404.
	account, err := h.Store.GetAccount(r.Context(), actor.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, errUserNotFound)
			return
		}
		h.logger().Error("resolve uploader failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, errNoFilesUploaded)
		return
	}

	maxFiles := h.maxFilesDefault()
	if raw := strings.TrimSpace(r.Header.Get(maxFilesHeader)); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil && parsed > 0 {
			maxFiles = parsed
		}
	}

	accepted, err := h.collectFiles(r, reader, policy, maxFiles)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, errUploadFailed):
			status = http.StatusInternalServerError
		}
		writeError(w, status, err)
		return
	}
	if len(accepted) == 0 {
		writeError(w, http.StatusBadRequest, errNoFilesUploaded)
		return
	}

	// One media row per file. The objects are already in the bucket: a
	// failed insert leaves them there with no compensating delete.
	files := make([]uploadedFileResponse, 0, len(accepted))
	var totalBytes int64
	for _, file := range accepted {
		_, err := h.Store.CreateMedia(r.Context(), storage.CreateMediaParams{
			Kind:      policy.Kind,
			Title:     file.originalName,
			Link:      file.object.URL,
			CompanyID: account.CompanyID,
			MimeType:  file.contentType,
			SizeBytes: file.size,
			ObjectKey: file.object.Key,
		})
		if err != nil {
			h.logger().Error("save media record failed",
				"kind", string(policy.Kind),
				"object", file.object.Key,
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, errMediaInsert)
			return
		}
		files = append(files, uploadedFileResponse{
			Title:    file.originalName,
			Link:     file.object.URL,
			Company:  account.CompanyID,
			Mimetype: file.contentType,
			Size:     file.size,
		})
		totalBytes += file.size
	}
	metrics.RecordUpload(string(policy.Kind), len(files), totalBytes)

	message := "File uploaded successfully"
	if len(files) > 1 {
		message = "Files uploaded successfully"
	}
	writeJSON(w, http.StatusOK, uploadResponse{Message: message, Files: files})
}

// spooledPart is a multipart file that passed the type and size checks and
// now sits in the staging directory waiting for the layout to resolve.
type spooledPart struct {
	originalName string
	contentType  string
	size         int64
	tempPath     string
}

// multipartLayout is the typed result of walking the stream: the "files"
// parts and the optional "file" part, kept apart so resolve can apply the
// field cascade.
type multipartLayout struct {
	multi  []spooledPart
	single *spooledPart
}

// resolve applies the field cascade: "files" parts form the upload, a lone
// "file" part is the single-file fallback, and a request carrying both is
// malformed.
func (l multipartLayout) resolve() ([]spooledPart, error) {
	if len(l.multi) > 0 && l.single != nil {
		return nil, errUploadFailed
	}
	if len(l.multi) > 0 {
		return l.multi, nil
	}
	if l.single != nil {
		return []spooledPart{*l.single}, nil
	}
	return nil, nil
}

func (l multipartLayout) discard() {
	for _, file := range l.multi {
		_ = os.Remove(file.tempPath)
	}
	if l.single != nil {
		_ = os.Remove(l.single.tempPath)
	}
}

// collectFiles runs the two-stage parse. Stage one walks the stream,
// classifying each part by field name and spooling candidates through the
// type and size checks into the staging directory; stage two resolves the
// layout and streams the chosen files to the bucket. Nothing reaches the
// bucket until the whole request has parsed cleanly.
func (h *Handler) collectFiles(r *http.Request, reader *multipart.Reader, policy UploadPolicy, maxFiles int) ([]stagedFile, error) {
	layout, err := h.parseMultipart(reader, policy, maxFiles)
	defer layout.discard()
	if err != nil {
		return nil, err
	}
	chosen, err := layout.resolve()
	if err != nil {
		h.logger().Warn("request mixed 'files' and 'file' fields")
		return nil, err
	}

	accepted := make([]stagedFile, 0, len(chosen))
	for _, file := range chosen {
		staged, err := h.putSpooled(r, file)
		if err != nil {
			return nil, err
		}
		accepted = append(accepted, staged)
	}
	return accepted, nil
}

func (h *Handler) parseMultipart(reader *multipart.Reader, policy UploadPolicy, maxFiles int) (multipartLayout, error) {
	var layout multipartLayout
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return layout, nil
		}
		if err != nil {
			h.logger().Error("read multipart data failed", "error", err)
			return layout, errUploadFailed
		}
		name := part.FormName()
		if part.FileName() == "" || (name != "files" && name != "file") {
			_, _ = io.Copy(io.Discard, part)
			_ = part.Close()
			continue
		}
		spooled, err := h.spoolPart(part, policy)
		_ = part.Close()
		if err != nil {
			return layout, err
		}
		if name == "files" {
			layout.multi = append(layout.multi, spooled)
			if len(layout.multi) > maxFiles {
				h.logger().Warn("multi-file upload over cap", "max", maxFiles)
				return layout, errUploadFailed
			}
			continue
		}
		if layout.single != nil {
			_ = os.Remove(spooled.tempPath)
			h.logger().Warn("repeated 'file' field in single-file upload")
			return layout, errUploadFailed
		}
		layout.single = &spooled
	}
}

func (h *Handler) spoolPart(part *multipart.Part, policy UploadPolicy) (spooledPart, error) {
	contentType := strings.TrimSpace(part.Header.Get("Content-Type"))
	if !policy.Allows(contentType) {
		return spooledPart{}, policy.typeError()
	}
	tempPath, size, err := h.stageFile(part, policy.MaxFileBytes)
	if err != nil {
		if errors.Is(err, errFileTooLarge) {
			return spooledPart{}, policy.sizeError()
		}
		h.logger().Error("stage upload failed", "error", err)
		return spooledPart{}, errUploadFailed
	}
	return spooledPart{
		originalName: part.FileName(),
		contentType:  contentType,
		size:         size,
		tempPath:     tempPath,
	}, nil
}

func (h *Handler) putSpooled(r *http.Request, file spooledPart) (stagedFile, error) {
	src, err := os.Open(file.tempPath)
	if err != nil {
		h.logger().Error("open staged upload failed", "error", err)
		return stagedFile{}, errUploadFailed
	}
	defer src.Close()

	key := blob.ObjectKey(file.originalName, time.Now())
	object, err := h.Objects.Put(r.Context(), key, file.contentType, src, file.size)
	if err != nil {
		h.logger().Error("object storage write failed", "key", key, "error", err)
		return stagedFile{}, errUploadFailed
	}
	return stagedFile{
		originalName: file.originalName,
		contentType:  file.contentType,
		size:         file.size,
		object:       object,
	}, nil
}

// stageFile spools the part to a temp file, failing as soon as the byte
// count passes the policy ceiling so oversized uploads never reach the
// bucket and never fully buffer.
func (h *Handler) stageFile(part *multipart.Part, limit int64) (string, int64, error) {
	dir := h.stagingDirectory()
	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create staging file: %w", err)
	}
	defer tmp.Close()
	written, err := io.Copy(tmp, io.LimitReader(part, limit+1))
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("stage upload: %w", err)
	}
	if written > limit {
		_ = os.Remove(tmp.Name())
		return "", 0, errFileTooLarge
	}
	return tmp.Name(), written, nil
}

func (h *Handler) stagingDirectory() string {
	h.stagingOnce.Do(func() {
		dir := strings.TrimSpace(h.StagingDir)
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "mobile-core-uploads")
		}
		dir = filepath.Clean(dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			dir = os.TempDir()
		}
		h.stagingDir = dir
	})
	return h.stagingDir
}
