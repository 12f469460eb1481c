package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-session-service/internal/engine"
	"quiz-session-service/internal/service"
)

type SessionHandler struct {
	Service *service.SessionService
}

func NewSessionHandler(s *service.SessionService) *SessionHandler {
	return &SessionHandler{Service: s}
}

// StartSession opens a session for a course. If an unfinished attempt with
// answers exists the response parks on the restore decision instead of
// going straight to active.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req struct {
		CourseID   string `json:"course_id" binding:"required"`
		UnitFilter string `json:"unit_filter"`
		Settings   struct {
			RevealAnswers    bool `json:"reveal_answers"`
			TimeLimitSeconds int  `json:"time_limit_seconds"`
		} `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	learnerID := c.GetHeader("X-User-ID")
	if learnerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID is required"})
		return
	}

	result, err := h.Service.StartSession(
		context.Background(),
		learnerID,
		req.CourseID,
		req.UnitFilter,
		engine.Settings{
			RevealAnswers:    req.Settings.RevealAnswers,
			TimeLimitSeconds: req.Settings.TimeLimitSeconds,
		},
	)
	if errors.Is(err, engine.ErrNoContent) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Course has no questions",
			"code":  "NO_CONTENT",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to start session",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, result)
}

// RestoreDecision resolves the resume-or-start-over question for a session
// parked in the awaiting-restore phase.
func (h *SessionHandler) RestoreDecision(c *gin.Context) {
	token := c.Param("token")
	var req struct {
		Resume bool `json:"resume"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var view *service.StateView
	var err error
	if req.Resume {
		view, err = h.Service.Resume(context.Background(), token)
	} else {
		view, err = h.Service.DiscardAndRestart(context.Background(), token)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"phase":    view.Phase,
		"progress": progressView(view),
	})
}

// SetSelection replaces the learner's in-progress picks for one question of
// the current unit. Empty option_ids clears the selection.
func (h *SessionHandler) SetSelection(c *gin.Context) {
	token := c.Param("token")
	var req struct {
		QuestionID string   `json:"question_id" binding:"required"`
		OptionIDs  []string `json:"option_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Service.SetSelection(token, req.QuestionID, req.OptionIDs); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Selection updated"})
}

// SubmitUnit submits the current unit for scoring.
func (h *SessionHandler) SubmitUnit(c *gin.Context) {
	token := c.Param("token")
	result, err := h.Service.SubmitUnit(token)
	if errors.Is(err, engine.ErrIncompleteSelection) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Every question in the unit needs a selection",
			"code":  "INCOMPLETE_SELECTION",
		})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) Advance(c *gin.Context) {
	view, err := h.Service.Advance(c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"phase":      view.Phase,
		"unit_index": view.UnitIndex,
		"completed":  view.Phase == engine.PhaseCompleted,
	})
}

func (h *SessionHandler) Retreat(c *gin.Context) {
	view, err := h.Service.Retreat(c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"phase":      view.Phase,
		"unit_index": view.UnitIndex,
	})
}

func (h *SessionHandler) ToggleBookmark(c *gin.Context) {
	if err := h.Service.ToggleBookmark(c.Param("token")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bookmark toggled"})
}

func (h *SessionHandler) TogglePause(c *gin.Context) {
	paused, err := h.Service.TogglePause(c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": paused})
}

// StartRetry rebuilds the session over only previously incorrect or
// partially correct questions.
func (h *SessionHandler) StartRetry(c *gin.Context) {
	view, err := h.Service.StartRetry(context.Background(), c.Param("token"))
	if errors.Is(err, engine.ErrNothingToRetry) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "No incorrect or partial questions to retry",
			"code":  "NOTHING_TO_RETRY",
		})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"phase":      view.Phase,
		"retry_mode": view.RetryMode,
		"unit_count": view.UnitCount,
	})
}

// RestartFromScratch resets the session over the full original unit set.
func (h *SessionHandler) RestartFromScratch(c *gin.Context) {
	view, err := h.Service.RestartFromScratch(context.Background(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"phase":      view.Phase,
		"unit_count": view.UnitCount,
	})
}

// Flush is the client's visibility-change/unload signal.
func (h *SessionHandler) Flush(c *gin.Context) {
	if err := h.Service.Flush(context.Background(), c.Param("token")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Flushed"})
}

// GetCurrentUnit returns the unit on screen, answer keys stripped until
// answered.
func (h *SessionHandler) GetCurrentUnit(c *gin.Context) {
	unit, err := h.Service.CurrentUnit(c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unit": unit})
}

// GetStatus returns the session phase and headline numbers.
func (h *SessionHandler) GetStatus(c *gin.Context) {
	view, err := h.Service.State(c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"phase":    view.Phase,
		"progress": progressView(view),
	})
}

// GetProgress returns the detailed outcome breakdown.
func (h *SessionHandler) GetProgress(c *gin.Context) {
	view, err := h.Service.State(c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	progress := progressView(view)
	progress["incorrect_question_ids"] = view.IncorrectQuestionIDs
	progress["partially_correct_question_ids"] = view.PartialQuestionIDs
	progress["bookmarked_unit_ids"] = view.BookmarkedUnitIDs
	progress["retry_mode"] = view.RetryMode
	if view.FinalGrade != nil {
		progress["final_grade"] = *view.FinalGrade
	}
	c.JSON(http.StatusOK, gin.H{
		"phase":    view.Phase,
		"progress": progress,
	})
}

// GetCompletedRecord fetches the learner's sealed past attempt for a
// course, for review or a retake decision.
func (h *SessionHandler) GetCompletedRecord(c *gin.Context) {
	learnerID := c.GetHeader("X-User-ID")
	courseID := c.Query("course_id")
	if learnerID == "" || courseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id and user are required"})
		return
	}
	rec, err := h.Service.CompletedRecord(context.Background(), learnerID, courseID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No completed attempt for this course"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// Teardown flushes and drops a live session.
func (h *SessionHandler) Teardown(c *gin.Context) {
	if err := h.Service.Teardown(context.Background(), c.Param("token")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

func (h *SessionHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, engine.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "Session is not active"})
	case errors.Is(err, engine.ErrCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "Session already completed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func progressView(view *service.StateView) gin.H {
	return gin.H{
		"unit_index":         view.UnitIndex,
		"unit_count":         view.UnitCount,
		"questions_answered": view.QuestionsAnswered,
		"running_score":      view.RunningScore,
		"elapsed_seconds":    view.ElapsedSeconds,
	}
}
