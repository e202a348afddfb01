package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/services"
)

type CompetitionHandler struct {
  competitionService services.CompetitionService
}

func NewCompetitionHandler(competitionService services.CompetitionService) *CompetitionHandler {
  return &CompetitionHandler{competitionService: competitionService}
}

func (ch *CompetitionHandler) Start(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SchemaID   uuid.UUID `json:"schema_id"`
    Difficulty string    `json:"difficulty"`
    Rounds     int       `json:"rounds"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  submission, err := ch.competitionService.Start(c.Request.Context(), userID, req.SchemaID, req.Difficulty, req.Rounds)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, submission)
}

func (ch *CompetitionHandler) SubmitRound(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    SubmissionID uuid.UUID `json:"submission_id"`
    SessionID    string    `json:"session_id"`
    Round        int       `json:"round"`
    SQL          string    `json:"sql"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.SQL == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  outcome, err := ch.competitionService.SubmitRound(c.Request.Context(), userID, req.SubmissionID, req.SessionID, req.Round, req.SQL)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, outcome)
}

func (ch *CompetitionHandler) History(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  submissions, err := ch.competitionService.History(c.Request.Context(), userID)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"competitions": submissions})
}
