package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"TradeReview/internal/domain/models"
	domsvc "TradeReview/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/reviews", r.URL.Path)
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req domsvc.AnalysisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]string{"handle": "h-" + req.AttemptID})
	}))
	defer srv.Close()

	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL, SubmitPath: "/v1/reviews", Timeout: time.Second, Attempts: 3})
	sub, err := c.Submit(context.Background(), &domsvc.AnalysisRequest{TradeLogID: "t", AttemptID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "h-a1", sub.Handle)
	assert.Nil(t, sub.Verdict)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSubmitDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL, SubmitPath: "/v1/reviews", Attempts: 5})
	_, err := c.Submit(context.Background(), &domsvc.AnalysisRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitInlineVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"handle":"h","verdict":{"isAnalaysisCorrect":true,"analysis":{"summary":"ok"}}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL, SubmitPath: "/v1/reviews", Attempts: 1})
	sub, err := c.Submit(context.Background(), &domsvc.AnalysisRequest{})
	require.NoError(t, err)
	require.NotNil(t, sub.Verdict)
	assert.Equal(t, models.OutcomeValid, sub.Verdict.Outcome)
	require.NotNil(t, sub.Verdict.Analysis.IsValid)
	assert.True(t, *sub.Verdict.Analysis.IsValid)
}
