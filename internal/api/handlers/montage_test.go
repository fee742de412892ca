package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"cinemagic/internal/core"
	"cinemagic/internal/types"
)

// mockDispatcher implements MontageRunner for testing.
type mockDispatcher struct {
	runFn func(ctx context.Context, userID, videoPath, theme string) (string, error)
	calls []runCall
}

type runCall struct {
	UserID    string
	VideoPath string
	Theme     string
	Deadline  bool
}

func (m *mockDispatcher) Run(ctx context.Context, userID, videoPath, theme string) (string, error) {
	_, hasDeadline := ctx.Deadline()
	m.calls = append(m.calls, runCall{UserID: userID, VideoPath: videoPath, Theme: theme, Deadline: hasDeadline})
	if m.runFn != nil {
		return m.runFn(ctx, userID, videoPath, theme)
	}
	return "https://cdn.example.com/montages/out.mp4", nil
}

func newMontageTestRouter(dispatcher MontageRunner) chi.Router {
	handler := NewMontageHandler(dispatcher, core.NewValidator(nil), nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func doMontageRequest(r chi.Router, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/montage-video", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestMontageHandler_Create_Success(t *testing.T) {
	dispatcher := &mockDispatcher{}
	r := newMontageTestRouter(dispatcher)

	body := []byte(`{"userId": "user_1", "videoPath": "media/raw/clip.mp4", "theme": "retro"}`)
	rr := doMontageRequest(r, body)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d; body: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	var resp MontageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ResultURL != "https://cdn.example.com/montages/out.mp4" {
		t.Errorf("unexpected result URL: %q", resp.ResultURL)
	}
	if resp.Message == "" {
		t.Error("expected a non-empty message")
	}

	if len(dispatcher.calls) != 1 {
		t.Fatalf("expected 1 Run call, got %d", len(dispatcher.calls))
	}
	call := dispatcher.calls[0]
	if call.UserID != "user_1" || call.VideoPath != "media/raw/clip.mp4" || call.Theme != "retro" {
		t.Errorf("unexpected call args: %+v", call)
	}
	if !call.Deadline {
		t.Error("expected the render context to carry a deadline")
	}
}

func TestMontageHandler_Create_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing userId", body: `{"videoPath": "clip.mp4", "theme": "retro"}`},
		{name: "missing videoPath", body: `{"userId": "user_1", "theme": "retro"}`},
		{name: "missing theme", body: `{"userId": "user_1", "videoPath": "clip.mp4"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &mockDispatcher{}
			r := newMontageTestRouter(dispatcher)

			rr := doMontageRequest(r, []byte(tt.body))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
			}
			if code := decodeErrorCode(t, rr.Body.Bytes()); code != string(types.ErrCodeValidationMissingField) {
				t.Errorf("expected error code %q, got %q", types.ErrCodeValidationMissingField, code)
			}
			if len(dispatcher.calls) != 0 {
				t.Errorf("expected no Run calls, got %d", len(dispatcher.calls))
			}
		})
	}
}

func TestMontageHandler_Create_QuotaExceeded(t *testing.T) {
	dispatcher := &mockDispatcher{
		runFn: func(ctx context.Context, userID, videoPath, theme string) (string, error) {
			return "", types.NewAppError(types.ErrCodeEntitlementQuotaExceeded, "limit reached", nil)
		},
	}
	r := newMontageTestRouter(dispatcher)

	body := []byte(`{"userId": "user_1", "videoPath": "clip.mp4", "theme": "retro"}`)
	rr := doMontageRequest(r, body)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}
	if code := decodeErrorCode(t, rr.Body.Bytes()); code != string(types.ErrCodeEntitlementQuotaExceeded) {
		t.Errorf("expected error code %q, got %q", types.ErrCodeEntitlementQuotaExceeded, code)
	}
}

func TestMontageHandler_Create_SubscriptionRequired(t *testing.T) {
	dispatcher := &mockDispatcher{
		runFn: func(ctx context.Context, userID, videoPath, theme string) (string, error) {
			return "", types.NewAppError(types.ErrCodeEntitlementSubscriptionRequired, "subscription required", nil)
		},
	}
	r := newMontageTestRouter(dispatcher)

	body := []byte(`{"userId": "user_1", "videoPath": "clip.mp4", "theme": "retro"}`)
	rr := doMontageRequest(r, body)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}
	if code := decodeErrorCode(t, rr.Body.Bytes()); code != string(types.ErrCodeEntitlementSubscriptionRequired) {
		t.Errorf("expected error code %q, got %q", types.ErrCodeEntitlementSubscriptionRequired, code)
	}
}

func TestMontageHandler_Create_EngineFailure(t *testing.T) {
	dispatcher := &mockDispatcher{
		runFn: func(ctx context.Context, userID, videoPath, theme string) (string, error) {
			return "", types.NewAppError(types.ErrCodeUpstreamMontage, "montage engine request failed", nil)
		},
	}
	r := newMontageTestRouter(dispatcher)

	body := []byte(`{"userId": "user_1", "videoPath": "clip.mp4", "theme": "retro"}`)
	rr := doMontageRequest(r, body)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if code := decodeErrorCode(t, rr.Body.Bytes()); code != string(types.ErrCodeUpstreamMontage) {
		t.Errorf("expected error code %q, got %q", types.ErrCodeUpstreamMontage, code)
	}
}
