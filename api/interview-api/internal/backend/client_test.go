// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

func TestStartInterview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/interview/start", r.URL.Path)

		var req StartInterviewRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "backend engineer", req.Role)
		assert.Equal(t, "cand-1", req.UserID)
		assert.Equal(t, "start", req.Flag)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(StartInterviewResponse{
			SessionID: "sess-42",
			Question:  "Tell me about yourself.",
		})
	}))
	defer server.Close()

	logger, _ := commons.NewApplicationLogger()
	client := NewInterviewClientWithBaseURL(logger, server.URL)

	out, err := client.StartInterview(context.Background(), "backend engineer", "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-42", out.SessionID)
	assert.Equal(t, "Tell me about yourself.", out.Question)
}

func TestStartInterview_EmptySessionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(StartInterviewResponse{Question: "q"})
	}))
	defer server.Close()

	logger, _ := commons.NewApplicationLogger()
	client := NewInterviewClientWithBaseURL(logger, server.URL)

	_, err := client.StartInterview(context.Background(), "role", "cand-1")
	assert.ErrorIs(t, err, internal_type.ErrBackendRejection)
}

func TestContinueInterview(t *testing.T) {
	tests := []struct {
		name     string
		response ContinueInterviewResponse
	}{
		{
			name:     "next question",
			response: ContinueInterviewResponse{Step: "next", Question: "Why this role?"},
		},
		{
			name:     "final question",
			response: ContinueInterviewResponse{Step: StepDone, Question: "Any questions for us?"},
		},
		{
			name:     "completed",
			response: ContinueInterviewResponse{Step: StepCompleted, Message: "Thanks for your time."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/interview/continue", r.URL.Path)

				var req ContinueInterviewRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "sess-42", req.SessionID)
				assert.Equal(t, "I led the payments team.", req.UserAnswer)

				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			logger, _ := commons.NewApplicationLogger()
			client := NewInterviewClientWithBaseURL(logger, server.URL)

			out, err := client.ContinueInterview(context.Background(), "sess-42", "I led the payments team.")
			require.NoError(t, err)
			assert.Equal(t, tt.response.Step, out.Step)
			assert.Equal(t, tt.response.Question, out.Question)
			assert.Equal(t, tt.response.Message, out.Message)
		})
	}
}

func TestContinueInterview_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "malformed answer", http.StatusBadRequest)
	}))
	defer server.Close()

	logger, _ := commons.NewApplicationLogger()
	client := NewInterviewClientWithBaseURL(logger, server.URL)

	_, err := client.ContinueInterview(context.Background(), "sess-42", "answer")
	assert.ErrorIs(t, err, internal_type.ErrBackendRejection)
}

func TestUploadVideoProctoringLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/interview/proctoring-logs", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cand-1", req["user_id"])
		assert.Equal(t, "https://store.example/cand-1/recording-0.webm", req["video_url"])
		assert.NotNil(t, req["video_proctoring_logs"])

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger, _ := commons.NewApplicationLogger()
	client := NewInterviewClientWithBaseURL(logger, server.URL)

	err := client.UploadVideoProctoringLogs(context.Background(), &UploadProctoringRequest{
		UserID:              "cand-1",
		VideoURL:            "https://store.example/cand-1/recording-0.webm",
		VideoProctoringLogs: map[string]any{"tab_switches": 2},
	})
	require.NoError(t, err)
}
