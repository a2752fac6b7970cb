// Package server exposes the flag API over HTTP with JSON bodies.
//
// Request-path errors are recovered here and translated to an HTTP status
// plus a JSON error body; nothing escapes to the transport layer unhandled.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/togglemaster/toggled/internal/repository"
	"github.com/togglemaster/toggled/internal/service"
)

const defaultMaxJSONBodyBytes int64 = 1 << 20

var errJSONBodyTooLarge = errors.New("json request body too large")

// Service is the application surface the HTTP layer needs.
type Service interface {
	CreateFlag(ctx context.Context, name string, enabled bool) (repository.Flag, error)
	GetFlag(ctx context.Context, name string) (repository.Flag, error)
	ListFlags(ctx context.Context) ([]repository.Flag, error)
	SetEnabled(ctx context.Context, name string, enabled bool) (repository.Flag, error)
	Evaluate(ctx context.Context, flagName, userID string) (service.EvaluationResult, error)
}

// HTTPServer holds the handler state for the flag API.
type HTTPServer struct {
	service         Service
	maxJSONBodySize int64
}

type createFlagRequest struct {
	Name      string `json:"name"`
	IsEnabled *bool  `json:"is_enabled"`
}

type updateFlagRequest struct {
	IsEnabled *bool `json:"is_enabled"`
}

type evaluateRequest struct {
	FlagName string `json:"flag_name"`
	UserID   string `json:"user_id"`
}

type flagResponse struct {
	Name      string `json:"name"`
	IsEnabled bool   `json:"is_enabled"`
}

// HandlerOption customises the HTTP handler.
type HandlerOption func(*HTTPServer)

// WithMaxJSONBodySize overrides the maximum accepted JSON body size.
func WithMaxJSONBodySize(n int64) HandlerOption {
	return func(s *HTTPServer) {
		if n > 0 {
			s.maxJSONBodySize = n
		}
	}
}

// NewHTTPHandler builds the flag API routes.
func NewHTTPHandler(svc Service, opts ...HandlerOption) http.Handler {
	if svc == nil {
		panic("service is nil")
	}

	server := &HTTPServer{
		service:         svc,
		maxJSONBodySize: defaultMaxJSONBodyBytes,
	}
	for _, opt := range opts {
		opt(server)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", server.handleHealth)
	mux.HandleFunc("POST /flags", server.handleCreateFlag)
	mux.HandleFunc("GET /flags", server.handleListFlags)
	mux.HandleFunc("GET /flags/{name}", server.handleGetFlag)
	mux.HandleFunc("PUT /flags/{name}", server.handleUpdateFlag)
	mux.HandleFunc("POST /evaluate", server.handleEvaluate)

	return mux
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	var request createFlagRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if strings.TrimSpace(request.Name) == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	enabled := false
	if request.IsEnabled != nil {
		enabled = *request.IsEnabled
	}

	created, err := s.service.CreateFlag(r.Context(), request.Name, enabled)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "flag " + quoteName(created.Name) + " created",
	})
}

func (s *HTTPServer) handleListFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := s.service.ListFlags(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := make([]flagResponse, 0, len(flags))
	for _, flag := range flags {
		response = append(response, flagResponse{Name: flag.Name, IsEnabled: flag.Enabled})
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	flag, err := s.service.GetFlag(r.Context(), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, flagResponse{Name: flag.Name, IsEnabled: flag.Enabled})
}

func (s *HTTPServer) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	var request updateFlagRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if request.IsEnabled == nil {
		writeJSONError(w, http.StatusBadRequest, "is_enabled (boolean) is required")
		return
	}

	updated, err := s.service.SetEnabled(r.Context(), name, *request.IsEnabled)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "flag " + quoteName(updated.Name) + " updated",
	})
}

func (s *HTTPServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var request evaluateRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if strings.TrimSpace(request.FlagName) == "" {
		writeJSONError(w, http.StatusBadRequest, "flag_name is required")
		return
	}
	if strings.TrimSpace(request.UserID) == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	result, err := s.service.Evaluate(r.Context(), request.FlagName, request.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNameRequired), errors.Is(err, service.ErrUserIDRequired):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDuplicateName):
		writeJSONError(w, http.StatusConflict, "flag already exists")
	case errors.Is(err, service.ErrFlagNotFound):
		writeJSONError(w, http.StatusNotFound, "flag not found")
	case errors.Is(err, context.Canceled):
		writeJSONError(w, http.StatusRequestTimeout, "request canceled")
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSONDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errJSONBodyTooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *HTTPServer) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return normalizeJSONDecodeError(err)
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("request body must contain a single JSON object")
		}
		return normalizeJSONDecodeError(err)
	}

	return nil
}

func normalizeJSONDecodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errJSONBodyTooLarge
	}
	return err
}

func quoteName(name string) string {
	return "'" + name + "'"
}
