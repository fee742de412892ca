package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cinemagic/internal/core"
)

// montageTimeout bounds a single render request. The engine call dominates
// and can legitimately run for minutes, so the route carries its own
// deadline instead of the server default.
const montageTimeout = 5 * time.Minute

// MontageRunner gates and executes a montage render for a user.
type MontageRunner interface {
	Run(ctx context.Context, userID, videoPath, theme string) (string, error)
}

// MontageRequest is the body of POST /montage-video.
type MontageRequest struct {
	UserID    string `json:"userId" validate:"required"`
	VideoPath string `json:"videoPath" validate:"required"`
	Theme     string `json:"theme" validate:"required"`
}

// MontageResponse reports a completed render.
type MontageResponse struct {
	Message   string `json:"message"`
	ResultURL string `json:"result_url"`
}

// MontageHandler serves the metered montage operation.
type MontageHandler struct {
	dispatcher MontageRunner
	validator  *core.Validator
	logger     *slog.Logger
}

// NewMontageHandler creates a MontageHandler.
func NewMontageHandler(dispatcher MontageRunner, v *core.Validator, logger *slog.Logger) *MontageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MontageHandler{
		dispatcher: dispatcher,
		validator:  v,
		logger:     logger,
	}
}

// RegisterRoutes mounts the montage endpoint with its extended deadline.
func (h *MontageHandler) RegisterRoutes(r chi.Router) {
	r.With(core.ContextTimeoutMiddleware(montageTimeout)).Post("/montage-video", h.Create)
}

// Create handles POST /montage-video.
func (h *MontageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req MontageRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	resultURL, err := h.dispatcher.Run(r.Context(), req.UserID, req.VideoPath, req.Theme)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, MontageResponse{
		Message:   "Montage video created successfully",
		ResultURL: resultURL,
	})
}
