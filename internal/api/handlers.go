package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/game"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/story"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/worker"
)

const defaultTurnTimeout = 2 * time.Minute

var errStreamClosed = errors.New("stream closed")

// Engine runs turns and prepares session memory.
type Engine interface {
	ProcessTurn(ctx context.Context, sessionID, message string, opts ...game.TurnOption) ([]models.DialogMessage, error)
	InitializeSession(ctx context.Context, storyID, sessionID string) error
}

// WorkerManager serialises turns per session.
type WorkerManager interface {
	Submit(ctx context.Context, sessionID string, fn worker.Task) error
	EndSession(ctx context.Context, sessionID string)
}

// Handler wires HTTP routes to the story directory and the turn engine.
type Handler struct {
	stories     *story.Service
	engine      Engine
	workers     WorkerManager
	turnTimeout time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(stories *story.Service, engine Engine, workers WorkerManager, turnTimeout time.Duration) *Handler {
	if turnTimeout <= 0 {
		turnTimeout = defaultTurnTimeout
	}
	return &Handler{
		stories:     stories,
		engine:      engine,
		workers:     workers,
		turnTimeout: turnTimeout,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.health)

	api.POST("/stories", h.createStory)
	api.GET("/stories", h.listStories)
	api.GET("/stories/:story_id", h.getStory)
	api.DELETE("/stories/:story_id", h.deleteStory)
	api.GET("/stories/:story_id/characters", h.listCharacters)
	api.PUT("/characters/:character_id", h.updateCharacter)

	api.POST("/sessions", h.createSession)
	api.GET("/sessions/:session_id", h.getSession)
	api.DELETE("/sessions/:session_id", h.endSession)
	api.POST("/sessions/:session_id/messages", h.sendMessage)
	api.POST("/sessions/:session_id/messages/sync", h.sendMessageSync)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps domain errors onto status codes.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.FromCtx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, story.ErrNotFound),
		errors.Is(err, game.ErrSessionNotFound),
		errors.Is(err, game.ErrStoryNotFound),
		errors.Is(err, game.ErrPlayerCharacterNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrSessionInactive):
		return http.StatusConflict
	case errors.Is(err, game.ErrEmptyMessage),
		errors.Is(err, story.ErrInvalid),
		errors.Is(err, story.ErrCharacterNotInStory):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, worker.ErrStopped):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) createStory(c *gin.Context) {
	var req story.NewStory
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	st, chars, err := h.stories.CreateStory(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"story": st, "characters": chars})
}

func (h *Handler) listStories(c *gin.Context) {
	stories, err := h.stories.ListStories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if stories == nil {
		stories = make([]models.Story, 0)
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories})
}

func (h *Handler) getStory(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.stories.GetStory(ctx, c.Param("story_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	chars, err := h.stories.ListCharacters(ctx, st.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"story": st, "characters": nonNil(chars)})
}

func (h *Handler) deleteStory(c *gin.Context) {
	if err := h.stories.DeleteStory(c.Request.Context(), c.Param("story_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listCharacters(c *gin.Context) {
	ctx := c.Request.Context()
	storyID := c.Param("story_id")
	if _, err := h.stories.GetStory(ctx, storyID); err != nil {
		writeError(c, err)
		return
	}
	chars, err := h.stories.ListCharacters(ctx, storyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": nonNil(chars)})
}

func (h *Handler) updateCharacter(c *gin.Context) {
	var req story.NewCharacter
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ch, err := h.stories.UpdateCharacter(c.Request.Context(), c.Param("character_id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

type createSessionRequest struct {
	StoryID     string `json:"story_id"`
	CharacterID string `json:"character_id"`
	UserID      string `json:"user_id"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.StoryID == "" || req.CharacterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "story_id and character_id are required"})
		return
	}
	ctx := c.Request.Context()
	se, err := h.stories.CreateSession(ctx, req.StoryID, req.CharacterID, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.engine.InitializeSession(ctx, se.StoryID, se.ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"game_session_id": se.ID, "session": se})
}

func (h *Handler) getSession(c *gin.Context) {
	se, err := h.stories.GetSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, se)
}

func (h *Handler) endSession(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")
	if err := h.stories.EndSession(ctx, sessionID); err != nil {
		writeError(c, err)
		return
	}
	h.workers.EndSession(ctx, sessionID)
	c.Status(http.StatusNoContent)
}

type messageRequest struct {
	Message string `json:"message"`
}

// checkSession rejects unknown or ended sessions before any streaming
// starts, so those errors keep their status codes.
func (h *Handler) checkSession(c *gin.Context) (*models.GameSession, bool) {
	se, err := h.stories.GetSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, story.ErrNotFound) {
			err = game.ErrSessionNotFound
		}
		writeError(c, err)
		return nil, false
	}
	if !se.Active {
		writeError(c, game.ErrSessionInactive)
		return nil, false
	}
	return se, true
}

func bindMessage(c *gin.Context) (string, bool) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return "", false
	}
	return req.Message, true
}

// runTurn queues the turn on the session worker.
func (h *Handler) runTurn(ctx context.Context, sessionID, message string, opts ...game.TurnOption) ([]models.DialogMessage, error) {
	turnCtx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	var replies []models.DialogMessage
	err := h.workers.Submit(turnCtx, sessionID, func(ctx context.Context) error {
		var err error
		replies, err = h.engine.ProcessTurn(ctx, sessionID, message, opts...)
		if err == nil {
			if touchErr := h.stories.TouchSession(ctx, sessionID); touchErr != nil {
				log.FromCtx(ctx).Warn().Err(touchErr).Str("session_id", sessionID).Msg("touch session failed")
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return replies, nil
}

func (h *Handler) sendMessageSync(c *gin.Context) {
	message, ok := bindMessage(c)
	if !ok {
		return
	}
	se, ok := h.checkSession(c)
	if !ok {
		return
	}
	replies, err := h.runTurn(c.Request.Context(), se.ID, message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": nonNil(replies)})
}

func (h *Handler) sendMessage(c *gin.Context) {
	message, ok := bindMessage(c)
	if !ok {
		return
	}
	se, ok := h.checkSession(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	stream := &sseStream{w: c.Writer, flusher: flusher}
	if err := stream.send("ack", gin.H{"session_id": se.ID, "message": message}); err != nil {
		return
	}
	replies, err := h.runTurn(c.Request.Context(), se.ID, message,
		game.WithReplyHook(func(m models.DialogMessage) {
			_ = stream.send("reply", m)
		}))
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			log.FromCtx(c.Request.Context()).Error().Err(err).Str("session_id", se.ID).Msg("turn failed")
		}
		_ = stream.send("error", gin.H{"message": err.Error(), "status": statusFor(err)})
	} else {
		_ = stream.send("done", gin.H{"responses": nonNil(replies)})
	}
	// a timed-out turn may still be running on the worker
	stream.close()
}

// sseStream writes server-sent events. Replies arrive from the session
// worker, so writes are locked and refused once the handler returned.
type sseStream struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
}

func (s *sseStream) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return make([]T, 0)
	}
	return items
}
