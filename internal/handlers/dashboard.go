package handlers

import (
  "github.com/gin-gonic/gin"
  "github.com/sqlmentor/sqlmentor-backend/internal/services"
)

type DashboardHandler struct {
  dashboardService services.DashboardService
}

func NewDashboardHandler(dashboardService services.DashboardService) *DashboardHandler {
  return &DashboardHandler{dashboardService: dashboardService}
}

func (dh *DashboardHandler) Stats(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  stats, err := dh.dashboardService.Stats(c.Request.Context(), userID)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, stats)
}
