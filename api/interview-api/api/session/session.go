// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package interview_session_api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	internal_attempt "github.com/vettaai/api/interview-api/internal/attempt"
	internal_backend "github.com/vettaai/api/interview-api/internal/backend"
	channel_webrtc "github.com/vettaai/api/interview-api/internal/channel/webrtc"
	internal_upload "github.com/vettaai/api/interview-api/internal/upload"
	"github.com/vettaai/config"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/connectors"
)

var sessionUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionApi exposes the interview attempt lifecycle: attempt creation
// over plain HTTP, then one WebSocket per attempt carrying signaling,
// interview controls and proctoring events. Media flows through native
// WebRTC tracks (SRTP), never the WebSocket.
type SessionApi struct {
	cfg    *config.AppConfig
	logger commons.Logger

	store     internal_attempt.Store
	cache     internal_attempt.Cache
	backend   internal_backend.InterviewClient
	blobStore internal_upload.BlockStore
}

func NewSessionApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	postgres connectors.PostgresConnector,
	redis connectors.RedisConnector,
) *SessionApi {
	return &SessionApi{
		cfg:       cfg,
		logger:    logger,
		store:     internal_attempt.NewStore(postgres, logger),
		cache:     internal_attempt.NewCache(redis, logger),
		backend:   internal_backend.NewInterviewClient(cfg, logger),
		blobStore: internal_upload.NewRestBlockStore(logger, &cfg.BlobStoreConfig),
	}
}

type createAttemptRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
	Role   string `json:"role" binding:"required"`
}

// CreateAttempt registers a pending interview attempt.
//
// @Router /v1/interview/attempt [post]
func (api *SessionApi) CreateAttempt(c *gin.Context) {
	var req createAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attempt := &internal_attempt.Attempt{
		UserID: req.UserID,
		Email:  req.Email,
		Role:   req.Role,
		Status: internal_attempt.StatusPending,
	}
	attemptID, err := api.store.Save(c.Request.Context(), attempt)
	if err != nil {
		api.logger.Errorw("failed to save interview attempt", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to create attempt"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attempt_id": attemptID})
}

// GetAttempt returns the stored state of one attempt.
//
// @Router /v1/interview/attempt/:attemptId [get]
func (api *SessionApi) GetAttempt(c *gin.Context) {
	attempt, err := api.store.Get(c.Request.Context(), c.Param("attemptId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// Connect claims a pending attempt and upgrades to the session
// WebSocket. The claim is atomic: a second connection for the same
// attempt is rejected before any upgrade happens.
//
// @Router /v1/interview/session/:attemptId [get]
func (api *SessionApi) Connect(c *gin.Context) {
	attemptID := c.Param("attemptId")

	attempt, err := api.store.Claim(c.Request.Context(), attemptID)
	if err != nil {
		api.logger.Warnw("attempt claim rejected", "attemptId", attemptID, "error", err)
		c.JSON(http.StatusConflict, gin.H{"error": "attempt not available"})
		return
	}

	conn, err := sessionUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorf("websocket upgrade failed: %v", err)
		api.store.Fail(c.Request.Context(), attemptID, "websocket upgrade failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to upgrade to websocket"})
		return
	}

	channel, err := channel_webrtc.NewChannel(c.Request.Context(), api.logger, conn)
	if err != nil {
		api.logger.Errorw("failed to create media channel", "error", err, "attemptId", attemptID)
		api.store.Fail(c.Request.Context(), attemptID, "media channel setup failed")
		conn.Close()
		return
	}

	live, err := newLiveSession(api, attempt, channel)
	if err != nil {
		api.logger.Errorw("failed to set up interview session", "error", err, "attemptId", attemptID)
		api.store.Fail(c.Request.Context(), attemptID, "session setup failed")
		channel.SendNotice("interview setup failed")
		channel.Close()
		return
	}
	live.run()
}
