package services

import (
  "context"
  "encoding/json"
  "fmt"
  "os"
  "strings"
  "time"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/clients/redis"
  "github.com/sqlmentor/sqlmentor-backend/internal/clients/stripe"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/repos"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

type BillingService interface {
  // CreateCheckoutSession opens a Stripe checkout for upgrading to the
  // named plan and returns the redirect URL.
  CreateCheckoutSession(ctx context.Context, userID uuid.UUID, plan string) (string, error)

  // HandleWebhook verifies and applies one Stripe webhook delivery.
  HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error
}

type billingService struct {
  log              *logger.Logger
  stripeClient     stripe.Client
  subscriptionRepo repos.SubscriptionRepo
  subscriptions    SubscriptionService
  planBus          redis.PlanBus

  priceToPlan map[string]string
  planToPrice map[string]string
  successURL  string
  cancelURL   string
}

func NewBillingService(
  log *logger.Logger,
  stripeClient stripe.Client,
  subscriptionRepo repos.SubscriptionRepo,
  subscriptions SubscriptionService,
  planBus redis.PlanBus,
) BillingService {
  serviceLog := log.With("service", "BillingService")

  // Price ids come from the Stripe dashboard, one per paid plan.
  planToPrice := map[string]string{
    PlanPro: strings.TrimSpace(os.Getenv("STRIPE_PRICE_PRO")),
    PlanMax: strings.TrimSpace(os.Getenv("STRIPE_PRICE_MAX")),
  }
  priceToPlan := make(map[string]string, len(planToPrice))
  for plan, price := range planToPrice {
    if price != "" {
      priceToPlan[price] = plan
    }
  }

  return &billingService{
    log:              serviceLog,
    stripeClient:     stripeClient,
    subscriptionRepo: subscriptionRepo,
    subscriptions:    subscriptions,
    planBus:          planBus,
    priceToPlan:      priceToPlan,
    planToPrice:      planToPrice,
    successURL:       os.Getenv("STRIPE_SUCCESS_URL"),
    cancelURL:        os.Getenv("STRIPE_CANCEL_URL"),
  }
}

func (bs *billingService) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, plan string) (string, error) {
  priceID := bs.planToPrice[plan]
  if priceID == "" {
    return "", fmt.Errorf("plan %s is not purchasable", plan)
  }
  session, err := bs.stripeClient.CreateCheckoutSession(ctx, userID.String(), priceID, bs.successURL, bs.cancelURL)
  if err != nil {
    return "", fmt.Errorf("Failed to create checkout session: %w", err)
  }
  return session.URL, nil
}

func (bs *billingService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
  if err := bs.stripeClient.VerifyWebhookSignature(payload, sigHeader); err != nil {
    return fmt.Errorf("webhook signature rejected: %w", err)
  }

  event, err := stripe.ParseEvent(payload)
  if err != nil {
    return err
  }

  switch event.Type {
  case "customer.subscription.created",
    "customer.subscription.updated",
    "customer.subscription.deleted":
    var sub stripe.SubscriptionObject
    if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
      return fmt.Errorf("Failed to decode subscription object: %w", err)
    }
    return bs.applySubscription(ctx, event.Type, &sub)
  default:
    // Unhandled event types are acknowledged so Stripe stops retrying.
    bs.log.Debug("Ignoring webhook event", "type", event.Type)
    return nil
  }
}

func (bs *billingService) applySubscription(ctx context.Context, eventType string, sub *stripe.SubscriptionObject) error {
  rawUserID := sub.Metadata["user_id"]
  userID, err := uuid.Parse(rawUserID)
  if err != nil {
    return fmt.Errorf("subscription %s has no usable user_id metadata: %w", sub.ID, err)
  }

  plan := ""
  if len(sub.Items.Data) > 0 {
    plan = bs.priceToPlan[sub.Items.Data[0].Price.ID]
  }
  if plan == "" {
    bs.log.Warn("Subscription price maps to no plan", "subscription_id", sub.ID)
  }

  status := sub.Status
  if eventType == "customer.subscription.deleted" {
    status = "canceled"
  }

  existing, err := bs.subscriptionRepo.GetByStripeIDs(ctx, nil, []string{sub.ID})
  if err != nil {
    return fmt.Errorf("Failed to look up subscription: %w", err)
  }

  periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()

  if len(existing) > 0 {
    row := existing[0]
    row.Plan = plan
    row.Status = status
    row.CurrentPeriodEnd = periodEnd
    row.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
    if err := bs.subscriptionRepo.Update(ctx, nil, row); err != nil {
      return fmt.Errorf("Failed to update subscription: %w", err)
    }
  } else {
    row := &types.Subscription{
      ID:                   uuid.New(),
      UserID:               userID,
      StripeSubscriptionID: sub.ID,
      Plan:                 plan,
      Status:               status,
      CurrentPeriodEnd:     periodEnd,
      CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
    }
    if _, err := bs.subscriptionRepo.Create(ctx, nil, []*types.Subscription{row}); err != nil {
      return fmt.Errorf("Failed to create subscription: %w", err)
    }
  }

  bs.subscriptions.InvalidatePlanCache(userID)
  if bs.planBus != nil {
    change := redis.PlanChange{UserID: userID, Plan: plan, Status: status}
    if err := bs.planBus.Publish(ctx, change); err != nil {
      bs.log.Warn("Failed to publish plan change", "user_id", userID, "error", err)
    }
  }
  return nil
}
