package handlers

import (
  "io"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/sqlmentor/sqlmentor-backend/internal/services"
)

type BillingHandler struct {
  billingService services.BillingService
}

func NewBillingHandler(billingService services.BillingService) *BillingHandler {
  return &BillingHandler{billingService: billingService}
}

func (bh *BillingHandler) CreateCheckoutSession(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  var req struct {
    Plan string `json:"plan"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.Plan == "" {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  url, err := bh.billingService.CreateCheckoutSession(c.Request.Context(), userID, req.Plan)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"checkout_url": url})
}

// Webhook reads the raw body before anything else touches it, since the
// Stripe signature covers the exact bytes delivered.
func (bh *BillingHandler) Webhook(c *gin.Context) {
  payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "bad_request", err)
    return
  }
  sigHeader := c.GetHeader("Stripe-Signature")
  if err := bh.billingService.HandleWebhook(c.Request.Context(), payload, sigHeader); err != nil {
    RespondError(c, http.StatusBadRequest, "webhook_rejected", err)
    return
  }
  RespondOK(c, gin.H{"received": true})
}
