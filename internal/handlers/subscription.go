package handlers

import (
  "github.com/gin-gonic/gin"
  "github.com/sqlmentor/sqlmentor-backend/internal/services"
)

type SubscriptionHandler struct {
  subscriptionService services.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService services.SubscriptionService) *SubscriptionHandler {
  return &SubscriptionHandler{subscriptionService: subscriptionService}
}

func (sh *SubscriptionHandler) GetUserSubscription(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  ctx := c.Request.Context()
  plan, err := sh.subscriptionService.ResolvePlan(ctx, userID)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  sub, err := sh.subscriptionService.GetUserSubscription(ctx, userID)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{
    "plan":         plan,
    "config":       sh.subscriptionService.PlanConfigFor(plan),
    "subscription": sub,
  })
}

func (sh *SubscriptionHandler) FeatureCheck(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  check, err := sh.subscriptionService.CanUseFeature(c.Request.Context(), userID, c.Param("feature"))
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, check)
}
