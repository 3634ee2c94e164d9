package confession

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 64 << 10

// Submission is the body of POST /confessions.
type Submission struct {
	Title          string `json:"title" validate:"required,max=200"`
	Content        string `json:"content" validate:"required,max=5000"`
	ConfessionType string `json:"confession_type" validate:"required,max=50"`
	Username       string `json:"username" validate:"max=50"`
}

type created struct {
	Message string     `json:"message"`
	Data    Confession `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the confession REST endpoints.
type Handler struct {
	store    Store
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

// NewHandler returns a Handler backed by store.
func NewHandler(store Store, log *slog.Logger) *Handler {
	return &Handler{store: store, validate: validator.New(), log: log, now: time.Now}
}

// Register mounts the handlers on r. Middleware, such as the submission
// rate limiter, wraps only the POST route.
func (h *Handler) Register(r *mux.Router, submit ...mux.MiddlewareFunc) {
	var post http.Handler = http.HandlerFunc(h.Create)
	for i := len(submit) - 1; i >= 0; i-- {
		post = submit[i](post)
	}
	r.Handle("/confessions", post).Methods(http.MethodPost)
	r.HandleFunc("/confessions", h.List).Methods(http.MethodGet)
}

// Build validates s and turns it into a Confession ready to store.
func (h *Handler) Build(s Submission) (Confession, error) {
	s.Username = strings.TrimSpace(s.Username)
	if err := h.validate.Struct(s); err != nil {
		return Confession{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.Username == "" {
		s.Username = AnonymousUsername
	}
	return Confession{
		ID:             uuid.New(),
		Title:          s.Title,
		Content:        s.Content,
		ConfessionType: s.ConfessionType,
		Username:       s.Username,
		CreatedAt:      h.now().UTC(),
	}, nil
}

// Create handles POST /confessions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var s Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := h.Build(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.store.Create(r.Context(), c)
	if err != nil {
		h.log.Error("Failed to store confession", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.log.Info("Confession submitted", "id", stored.ID, "type", stored.ConfessionType)
	writeJSON(w, http.StatusCreated, created{Message: "Confession submitted successfully", Data: stored})
}

// List handles GET /confessions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error("Failed to list confessions", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
