package interview_routers

import (
	"github.com/gin-gonic/gin"
	interviewSessionApi "github.com/vettaai/api/interview-api/api/session"
	"github.com/vettaai/config"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/connectors"
)

func InterviewApiRoute(
	cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	postgres connectors.PostgresConnector,
	redis connectors.RedisConnector) {
	apiv1 := engine.Group("v1/interview")
	sessionApi := interviewSessionApi.NewSessionApi(cfg, logger, postgres, redis)
	{
		apiv1.POST("/attempt", sessionApi.CreateAttempt)
		apiv1.GET("/attempt/:attemptId", sessionApi.GetAttempt)

		// WebSocket: signaling, interview controls and proctoring
		// events. Media rides the negotiated WebRTC tracks.
		apiv1.GET("/session/:attemptId", sessionApi.Connect)
	}
}
