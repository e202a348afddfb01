package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/services"
)

type PracticeHandler struct {
  practiceService services.PracticeService
}

func NewPracticeHandler(practiceService services.PracticeService) *PracticeHandler {
  return &PracticeHandler{practiceService: practiceService}
}

func (ph *PracticeHandler) GenerateSchema(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SessionID  string `json:"session_id"`
    Topic      string `json:"topic"`
    Difficulty string `json:"difficulty"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  artifact, err := ph.practiceService.GenerateSchema(c.Request.Context(), userID, req.SessionID, req.Topic, req.Difficulty)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, artifact)
}

func (ph *PracticeHandler) PopulateTables(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SessionID string    `json:"session_id"`
    SchemaID  uuid.UUID `json:"schema_id"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  counts, err := ph.practiceService.PopulateTables(c.Request.Context(), userID, req.SessionID, req.SchemaID)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"row_counts": counts})
}

func (ph *PracticeHandler) CreateSession(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SessionID  string    `json:"session_id"`
    SchemaID   uuid.UUID `json:"schema_id"`
    Difficulty string    `json:"difficulty"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  session, err := ph.practiceService.CreateSession(c.Request.Context(), userID, req.SessionID, req.SchemaID, req.Difficulty)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, session)
}

func (ph *PracticeHandler) GenerateQuestions(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SessionID string `json:"session_id"`
    Count     int    `json:"count"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  questions, err := ph.practiceService.GenerateQuestions(c.Request.Context(), userID, req.SessionID, req.Count)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"questions": questions})
}

func (ph *PracticeHandler) CheckAnswer(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SessionID  string `json:"session_id"`
    Question   string `json:"question"`
    SQL        string `json:"sql"`
    Difficulty string `json:"difficulty"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.SQL == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  result, err := ph.practiceService.CheckAnswer(c.Request.Context(), userID, req.SessionID, req.Question, req.SQL, req.Difficulty)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, result)
}

func (ph *PracticeHandler) ExecuteQuery(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SessionID string `json:"session_id"`
    SQL       string `json:"sql"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.SQL == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  result, err := ph.practiceService.ExecuteQuery(c.Request.Context(), userID, req.SessionID, req.SQL)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, result)
}

func (ph *PracticeHandler) Teardown(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SessionID string `json:"session_id"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  ph.practiceService.Teardown(c.Request.Context(), userID, req.SessionID)
  RespondOK(c, gin.H{"released": true})
}

func (ph *PracticeHandler) ListSessions(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  sessions, err := ph.practiceService.ListSessions(c.Request.Context(), userID)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"sessions": sessions})
}

func (ph *PracticeHandler) ListSchemas(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  schemas, err := ph.practiceService.ListSchemas(c.Request.Context(), userID)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"schemas": schemas})
}
