// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/config"
	"github.com/vettaai/pkg/commons"
)

// Step values returned by the interview backend on answer submission.
const (
	// StepDone marks the returned question as the final one.
	StepDone = "done"
	// StepCompleted means the interview is over and no further question
	// follows.
	StepCompleted = "completed"
)

type StartInterviewRequest struct {
	Role   string `json:"role"`
	UserID string `json:"user_id"`
	Flag   string `json:"flag"`
}

type StartInterviewResponse struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type ContinueInterviewRequest struct {
	SessionID  string `json:"session_id"`
	UserAnswer string `json:"user_answer"`
}

type ContinueInterviewResponse struct {
	Step     string `json:"step"`
	Question string `json:"question,omitempty"`
	Message  string `json:"message,omitempty"`
}

type UploadProctoringRequest struct {
	UserID              string `json:"user_id"`
	VideoURL            string `json:"video_url"`
	VideoProctoringLogs any    `json:"video_proctoring_logs"`
}

// InterviewClient is the question-generation and persistence backend
// consumed by the dialogue machine and the finalization orchestrator.
// Question generation and evaluation stay server-side behind it.
type InterviewClient interface {
	StartInterview(ctx context.Context, role string, userID string) (*StartInterviewResponse, error)
	ContinueInterview(ctx context.Context, sessionID string, answer string) (*ContinueInterviewResponse, error)
	UploadVideoProctoringLogs(ctx context.Context, request *UploadProctoringRequest) error
}

type interviewClient struct {
	logger commons.Logger
	client *resty.Client
}

func NewInterviewClient(cfg *config.AppConfig, logger commons.Logger) InterviewClient {
	client := resty.New().
		SetBaseURL(cfg.InterviewBackendHost).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &interviewClient{
		logger: logger,
		client: client,
	}
}

// NewInterviewClientWithBaseURL exists for tests targeting an httptest
// server.
func NewInterviewClientWithBaseURL(logger commons.Logger, baseURL string) InterviewClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")
	return &interviewClient{
		logger: logger,
		client: client,
	}
}

func (c *interviewClient) StartInterview(ctx context.Context, role string, userID string) (*StartInterviewResponse, error) {
	out := &StartInterviewResponse{}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&StartInterviewRequest{Role: role, UserID: userID, Flag: "start"}).
		SetResult(out).
		Post("/interview/start")
	if err != nil {
		return nil, fmt.Errorf("start interview: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("start interview: status %d: %s: %w", resp.StatusCode(), resp.String(), internal_type.ErrBackendRejection)
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("start interview: empty session id: %w", internal_type.ErrBackendRejection)
	}
	c.logger.Infow("interview session opened", "sessionId", out.SessionID, "role", role)
	return out, nil
}

func (c *interviewClient) ContinueInterview(ctx context.Context, sessionID string, answer string) (*ContinueInterviewResponse, error) {
	out := &ContinueInterviewResponse{}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&ContinueInterviewRequest{SessionID: sessionID, UserAnswer: answer}).
		SetResult(out).
		Post("/interview/continue")
	if err != nil {
		return nil, fmt.Errorf("continue interview %s: %w", sessionID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("continue interview %s: status %d: %s: %w", sessionID, resp.StatusCode(), resp.String(), internal_type.ErrBackendRejection)
	}
	return out, nil
}

func (c *interviewClient) UploadVideoProctoringLogs(ctx context.Context, request *UploadProctoringRequest) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(request).
		Post("/interview/proctoring-logs")
	if err != nil {
		return fmt.Errorf("upload proctoring logs for %s: %w", request.UserID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload proctoring logs for %s: status %d: %w", request.UserID, resp.StatusCode(), internal_type.ErrBackendRejection)
	}
	c.logger.Infow("proctoring logs persisted", "userId", request.UserID, "videoUrl", request.VideoURL)
	return nil
}
