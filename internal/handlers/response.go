package handlers

import (
  "errors"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/requestdata"
  "github.com/sqlmentor/sqlmentor-backend/internal/services"
)

type APIError struct {
  Message string `json:"message"`
  Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the service sentinels onto HTTP statuses so
// handlers do not repeat the switch.
func RespondServiceError(c *gin.Context, err error) {
  switch {
  case errors.Is(err, services.ErrQuotaExceeded):
    RespondError(c, http.StatusPaymentRequired, "quota_exceeded", err)
  case errors.Is(err, services.ErrNotFound):
    RespondError(c, http.StatusNotFound, "not_found", err)
  case errors.Is(err, services.ErrSandboxUnavailable):
    RespondError(c, http.StatusServiceUnavailable, "sandbox_unavailable", err)
  case errors.Is(err, services.ErrPopulationInsufficient):
    RespondError(c, http.StatusUnprocessableEntity, "population_insufficient", err)
  case errors.Is(err, services.ErrGenerationFailed), errors.Is(err, services.ErrApplicationFailed):
    RespondError(c, http.StatusBadGateway, "generation_failed", err)
  default:
    RespondError(c, http.StatusInternalServerError, "internal", err)
  }
}

// CallerID pulls the authenticated user from the request context. The auth
// middleware guarantees it is set on protected routes.
func CallerID(c *gin.Context) (uuid.UUID, bool) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.UserID == uuid.Nil {
    RespondError(c, http.StatusForbidden, "forbidden", errors.New("forbidden"))
    return uuid.Nil, false
  }
  return rd.UserID, true
}
