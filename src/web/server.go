package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/analyzer"
	"drawing-assistant-go/src/core/assist"
	"drawing-assistant-go/src/core/camera"
	"drawing-assistant-go/src/core/providers/speech"
	"drawing-assistant-go/src/core/session"
	"drawing-assistant-go/src/core/utils"
)

// streamInterval paces the MJPEG re-stream to the browser.
const streamInterval = 100 * time.Millisecond

// Service registers the drawing-assistant HTTP and websocket routes.
type Service struct {
	config   *configs.Config
	pipeline *assist.Pipeline
	session  *session.State
	speaker  *speech.Speaker
	analyzer *analyzer.Analyzer
	frames   *camera.Source
	hub      *Hub
	logger   *utils.TaggedLogger
}

func NewService(
	config *configs.Config,
	pipeline *assist.Pipeline,
	sessionState *session.State,
	speaker *speech.Speaker,
	feedbackAnalyzer *analyzer.Analyzer,
	frames *camera.Source,
	hub *Hub,
	logger *utils.Logger,
) *Service {
	return &Service{
		config:   config,
		pipeline: pipeline,
		session:  sessionState,
		speaker:  speaker,
		analyzer: feedbackAnalyzer,
		frames:   frames,
		hub:      hub,
		logger:   logger.WithTag("web"),
	}
}

// Start registers all routes on the shared engine.
func (s *Service) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.POST("/assist", s.handleRequestAssistance)
	apiGroup.POST("/reference", s.handleGenerateReference)
	apiGroup.POST("/session/restart", s.handleRestartSession)
	apiGroup.GET("/history", s.handleHistory)

	apiGroup.POST("/tts/enabled", s.handleSetTTSEnabled)
	apiGroup.POST("/tts/rate", s.handleSetTTSRate)
	apiGroup.POST("/tts/volume", s.handleSetTTSVolume)
	apiGroup.POST("/tts/voice", s.handleSetTTSVoice)
	apiGroup.GET("/tts/voices", s.handleGetTTSVoices)

	engine.GET("/video_feed", s.handleVideoFeed)
	engine.GET("/last_snapped", s.handleLastSnapped)
	engine.GET("/ws", s.hub.HandleConnection)

	engine.Static("/captured_images", s.config.Storage.CapturedDir)
	engine.Static("/generated_images", s.config.Storage.GeneratedDir)

	s.logger.Info("assistant HTTP routes registered")
	return nil
}

func (s *Service) handleRequestAssistance(c *gin.Context) {
	timestamp, err := s.pipeline.RequestAssistance(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "timestamp": timestamp})
}

func (s *Service) handleGenerateReference(c *gin.Context) {
	imagePath, err := s.pipeline.GenerateReference(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "image_path": imagePath})
}

func (s *Service) handleRestartSession(c *gin.Context) {
	s.session.Reset()
	s.logger.Info("session restarted by user")
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Session restarted. The AI will start over and forget previous suggestions.",
	})
}

func (s *Service) handleHistory(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records := s.analyzer.History(limit)
	if records == nil {
		records = []analyzer.Feedback{}
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (s *Service) handleSetTTSEnabled(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	s.speaker.SetEnabled(enabled)
	s.logger.Info(fmt.Sprintf("TTS enabled: %v", enabled))
	c.JSON(http.StatusOK, gin.H{"status": "success", "enabled": enabled})
}

func (s *Service) handleSetTTSRate(c *gin.Context) {
	var body struct {
		Rate int `json:"rate"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if body.Rate == 0 {
		body.Rate = 150
	}
	if err := s.speaker.SetRate(body.Rate); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info(fmt.Sprintf("TTS rate set to %d", body.Rate))
	c.JSON(http.StatusOK, gin.H{"status": "success", "rate": body.Rate})
}

func (s *Service) handleSetTTSVolume(c *gin.Context) {
	var body struct {
		Volume *float64 `json:"volume"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Volume == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.speaker.SetVolume(*body.Volume); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info(fmt.Sprintf("TTS volume set to %v", *body.Volume))
	c.JSON(http.StatusOK, gin.H{"status": "success", "volume": *body.Volume})
}

func (s *Service) handleSetTTSVoice(c *gin.Context) {
	var body struct {
		VoiceID string `json:"voice_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.VoiceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.speaker.SetVoice(body.VoiceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info(fmt.Sprintf("TTS voice set to %s", body.VoiceID))
	c.JSON(http.StatusOK, gin.H{"status": "success", "voice_id": body.VoiceID})
}

func (s *Service) handleGetTTSVoices(c *gin.Context) {
	voices := s.speaker.Voices()
	if voices == nil {
		voices = []speech.Voice{}
	}
	c.JSON(http.StatusOK, voices)
}

// handleVideoFeed re-streams camera frames to the browser as an MJPEG
// multipart response until the client goes away.
func (s *Service) handleVideoFeed(c *gin.Context) {
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		frame, ok := s.frames.Grab()
		if !ok {
			return
		}

		header := fmt.Sprintf("--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame.Data))
		if _, err := c.Writer.WriteString(header); err != nil {
			return
		}
		if _, err := c.Writer.Write(frame.Data); err != nil {
			return
		}
		if _, err := c.Writer.WriteString("\r\n"); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

func (s *Service) handleLastSnapped(c *gin.Context) {
	path := s.session.LastFrame()
	if path == "" {
		c.Status(http.StatusNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.File(path)
}

// statusFor maps a pipeline failure to an HTTP status: missing preconditions
// are the caller's problem, everything else is a server-side failure.
func statusFor(err error) int {
	var stageErr *assist.StageError
	if errors.As(err, &stageErr) && stageErr.Stage == assist.StagePrecondition {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
