package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cinemagic/internal/types"
)

// MontageClientConfig holds the configuration for creating a MontageClient.
type MontageClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// MontageEngine is the render capability the dispatcher depends on.
type MontageEngine interface {
	// Render submits a montage job and blocks until the engine returns the
	// result URL. The call can legitimately run for minutes; the context
	// deadline is the only cancellation mechanism.
	Render(ctx context.Context, userID, videoPath, theme string) (string, error)
}

// montageRequest is the job envelope sent to the render endpoint.
type montageRequest struct {
	JobID     string `json:"job_id"`
	UserID    string `json:"user_id"`
	VideoPath string `json:"video_path"`
	Theme     string `json:"theme"`
}

// montageResponse is the engine's reply to a render call.
type montageResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
	Error     string `json:"error"`
}

// MontageClient calls the montage render engine over HTTP through BaseClient.
// The engine is a synchronous inference API: one POST per job, response held
// open until the render completes.
type MontageClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewMontageClient creates a MontageClient. The httpClient timeout must
// accommodate the engine's render time (minutes, not seconds).
func NewMontageClient(httpClient *http.Client, cfg MontageClientConfig) *MontageClient {
	base := NewBaseClient(
		httpClient,
		"montage-engine",
		// Renders are expensive; a single retry is the most we ask of the
		// engine before surfacing the failure.
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    2 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"cinemagic/1.0",
	)
	return NewMontageClientWithBase(base, cfg)
}

// NewMontageClientWithBase creates a MontageClient around a caller-provided
// BaseClient.
func NewMontageClientWithBase(base *BaseClient, cfg MontageClientConfig) *MontageClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MontageClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// Render submits a montage job and returns the result URL on success.
func (c *MontageClient) Render(ctx context.Context, userID, videoPath, theme string) (string, error) {
	jobID := uuid.NewString()

	bodyBytes, err := json.Marshal(montageRequest{
		JobID:     jobID,
		UserID:    userID,
		VideoPath: videoPath,
		Theme:     theme,
	})
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize montage job",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/render", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build montage request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.InfoContext(ctx, "submitting montage job",
		slog.String("job_id", jobID),
		slog.String("user_id", userID),
		slog.String("theme", theme),
	)

	resp, err := c.base.Do(req)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok {
			return "", appErr
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamMontage,
			fmt.Sprintf("montage engine request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.handleErrorResponse(resp, jobID)
	}

	var result montageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamMontage,
			"failed to decode montage engine response",
			err,
		)
	}

	if result.ResultURL == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamMontage,
			fmt.Sprintf("montage engine returned no result for job %s (status %q)", jobID, result.Status),
			nil,
		)
	}

	c.logger.InfoContext(ctx, "montage job completed",
		slog.String("job_id", jobID),
		slog.String("user_id", userID),
	)
	return result.ResultURL, nil
}

// handleErrorResponse maps a non-200 engine reply to an AppError carrying
// the engine's own error message when one is present.
func (c *MontageClient) handleErrorResponse(resp *http.Response, jobID string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamMontage,
			fmt.Sprintf("montage engine returned status %d with unreadable body", resp.StatusCode),
			readErr,
		)
	}

	var engineErr montageResponse
	msg := fmt.Sprintf("montage engine rejected job %s (status %d)", jobID, resp.StatusCode)
	if json.Unmarshal(body, &engineErr) == nil && engineErr.Error != "" {
		msg = fmt.Sprintf("montage engine rejected job %s: %s", jobID, engineErr.Error)
	}
	return types.NewAppError(types.ErrCodeUpstreamMontage, msg, nil)
}

var _ MontageEngine = (*MontageClient)(nil)
