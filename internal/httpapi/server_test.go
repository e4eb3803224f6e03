package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"conductor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTurns struct {
	got       []types.TurnRequest
	requestID []string
	resp      types.TurnResponse
}

func (f *fakeTurns) HandleTurn(ctx context.Context, req types.TurnRequest, requestID string) types.TurnResponse {
	f.got = append(f.got, req)
	f.requestID = append(f.requestID, requestID)
	return f.resp
}

func TestHandleTurn_Success(t *testing.T) {
	turns := &fakeTurns{resp: types.TurnResponse{
		HTTPStatus: http.StatusOK,
		Envelope:   &types.Envelope{AssistantText: "hi", Blocks: []types.Block{}, Lineage: types.Lineage{RequestID: "req-9"}},
	}}
	h := NewHandler(turns)

	req := httptest.NewRequest(http.MethodPost, "/v1/turn", strings.NewReader(`{"message":"run analysis","client_turn_id":"t-1","context":{"messages":[]}}`))
	req.Header.Set("X-Request-Id", "req-9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-9", rec.Header().Get("X-Request-Id"))
	require.Len(t, turns.got, 1)
	assert.Equal(t, "t-1", turns.got[0].ClientTurnID)
	assert.Equal(t, []string{"req-9"}, turns.requestID)

	var env types.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "hi", env.AssistantText)
}

func TestHandleTurn_ErrorEnvelopeKeepsStatus(t *testing.T) {
	turns := &fakeTurns{resp: types.TurnResponse{
		HTTPStatus: 422,
		Error: &types.ErrorEnvelope{
			Error: types.ErrorDetail{Code: "ANALYSIS_REJECTED", Message: "blocked"},
			Trace: types.TraceRef{RequestID: "r", ClientTurnID: "t-1"},
		},
	}}
	rec := httptest.NewRecorder()
	NewHandler(turns).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turn", strings.NewReader(`{"message":"x","client_turn_id":"t-1"}`)))

	require.Equal(t, 422, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"ANALYSIS_REJECTED","message":"blocked","retryable":false},"trace":{"request_id":"r","client_turn_id":"t-1"}}`, rec.Body.String())
}

func TestHandleTurn_GeneratesRequestID(t *testing.T) {
	turns := &fakeTurns{resp: types.TurnResponse{HTTPStatus: http.StatusOK, Envelope: &types.Envelope{}}}
	rec := httptest.NewRecorder()
	NewHandler(turns).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turn", strings.NewReader(`{"message":"x","client_turn_id":"t"}`)))

	require.Len(t, turns.requestID, 1)
	assert.Len(t, turns.requestID[0], 36)
	assert.Equal(t, turns.requestID[0], rec.Header().Get("X-Request-Id"))
}

func TestHandleTurn_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"malformed json", http.MethodPost, `{"message":`, http.StatusBadRequest},
		{"trailing content", http.MethodPost, `{"message":"a"} {"message":"b"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := &fakeTurns{}
			rec := httptest.NewRecorder()
			NewHandler(turns).ServeHTTP(rec, httptest.NewRequest(tt.method, "/v1/turn", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, turns.got)
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(&fakeTurns{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}
