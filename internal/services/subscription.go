package services

import (
  "context"
  "fmt"
  "sync"
  "time"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/repos"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

// FeatureCheck is the outcome of a plan/quota check.
type FeatureCheck struct {
  Allowed   bool   `json:"allowed"`
  Reason    string `json:"reason,omitempty"`
  Plan      string `json:"plan"`
  Limit     int    `json:"limit"`
  Used      int    `json:"used"`
  Remaining int    `json:"remaining"`
}

type SubscriptionService interface {
  // ResolvePlan returns the user's effective plan name. Users without an
  // active subscription are on the default plan. A resolution error is
  // returned so callers deny rather than guess.
  ResolvePlan(ctx context.Context, userID uuid.UUID) (string, error)

  // CanUseFeature checks a feature against the user's plan and, for
  // countable features, against this month's usage. Any lookup failure
  // yields a denial, never a grant.
  CanUseFeature(ctx context.Context, userID uuid.UUID, feature string) (*FeatureCheck, error)

  // IncrementUsage records one use of a countable feature atomically.
  // Callers invoke it only after the gated action verifiably succeeded.
  IncrementUsage(ctx context.Context, userID uuid.UUID, feature string) error

  // GetUserSubscription returns the user's active subscription row, or
  // nil when they are on the default plan.
  GetUserSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error)

  // PlanConfigFor exposes the catalog entry for a plan name.
  PlanConfigFor(plan string) PlanConfig

  // InvalidatePlanCache drops the cached plan for one user. Called when
  // a billing event changes their subscription.
  InvalidatePlanCache(userID uuid.UUID)
}

type planCacheEntry struct {
  plan      string
  expiresAt time.Time
}

type subscriptionService struct {
  log              *logger.Logger
  subscriptionRepo repos.SubscriptionRepo
  usageRepo        repos.UserUsageRepo
  catalog          PlanCatalog
  defaultPlan      string

  cacheMu   sync.Mutex
  planCache map[uuid.UUID]planCacheEntry
  cacheTTL  time.Duration
}

func NewSubscriptionService(
  log *logger.Logger,
  subscriptionRepo repos.SubscriptionRepo,
  usageRepo repos.UserUsageRepo,
  catalog PlanCatalog,
  defaultPlan string,
) SubscriptionService {
  serviceLog := log.With("service", "SubscriptionService")
  if _, ok := catalog[defaultPlan]; !ok {
    defaultPlan = PlanFree
  }
  return &subscriptionService{
    log:              serviceLog,
    subscriptionRepo: subscriptionRepo,
    usageRepo:        usageRepo,
    catalog:          catalog,
    defaultPlan:      defaultPlan,
    planCache:        make(map[uuid.UUID]planCacheEntry),
    cacheTTL:         time.Minute,
  }
}

func (ss *subscriptionService) GetUserSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error) {
  subs, err := ss.subscriptionRepo.GetActiveByUserIDs(ctx, nil, []uuid.UUID{userID}, time.Now().UTC())
  if err != nil {
    return nil, fmt.Errorf("Failed to load subscription: %w", err)
  }
  if len(subs) == 0 {
    return nil, nil
  }
  return subs[0], nil
}

func (ss *subscriptionService) ResolvePlan(ctx context.Context, userID uuid.UUID) (string, error) {
  ss.cacheMu.Lock()
  if entry, ok := ss.planCache[userID]; ok && time.Now().Before(entry.expiresAt) {
    ss.cacheMu.Unlock()
    return entry.plan, nil
  }
  ss.cacheMu.Unlock()

  sub, err := ss.GetUserSubscription(ctx, userID)
  if err != nil {
    return "", err
  }

  plan := ss.defaultPlan
  if sub != nil {
    if _, known := ss.catalog[sub.Plan]; known {
      plan = sub.Plan
    } else {
      ss.log.Warn("Subscription names unknown plan, using default", "user_id", userID, "plan", sub.Plan)
    }
  }

  ss.cacheMu.Lock()
  ss.planCache[userID] = planCacheEntry{plan: plan, expiresAt: time.Now().Add(ss.cacheTTL)}
  ss.cacheMu.Unlock()

  return plan, nil
}

func (ss *subscriptionService) InvalidatePlanCache(userID uuid.UUID) {
  ss.cacheMu.Lock()
  delete(ss.planCache, userID)
  ss.cacheMu.Unlock()
}

func (ss *subscriptionService) PlanConfigFor(plan string) PlanConfig {
  if cfg, ok := ss.catalog[plan]; ok {
    return cfg
  }
  return ss.catalog[ss.defaultPlan]
}

// currentPeriod returns the usage period for now, always in UTC so a
// user's period does not shift with server timezone.
func currentPeriod() (int, int) {
  now := time.Now().UTC()
  return now.Year(), int(now.Month())
}

func (ss *subscriptionService) CanUseFeature(ctx context.Context, userID uuid.UUID, feature string) (*FeatureCheck, error) {
  plan, err := ss.ResolvePlan(ctx, userID)
  if err != nil {
    // Fail closed: an unresolvable plan denies the feature.
    ss.log.Warn("Plan resolution failed, denying feature", "user_id", userID, "feature", feature, "error", err)
    return &FeatureCheck{Allowed: false, Reason: "plan resolution failed"}, nil
  }
  cfg := ss.PlanConfigFor(plan)

  check := &FeatureCheck{Plan: plan}

  switch feature {
  case FeatureDownloadCert:
    check.Allowed = cfg.Features.CanDownloadCertificates
    if !check.Allowed {
      check.Reason = fmt.Sprintf("plan %s does not include certificate downloads", plan)
    }
    return check, nil
  case FeatureMasterCert:
    check.Allowed = cfg.Features.CanGetMasterCertificate
    if !check.Allowed {
      check.Reason = fmt.Sprintf("plan %s does not include the master certificate", plan)
    }
    return check, nil
  case FeatureGenerateSchema, FeatureCompetition:
  default:
    return nil, fmt.Errorf("unknown feature: %s", feature)
  }

  year, month := currentPeriod()
  usage, err := ss.usageRepo.GetOrCreate(ctx, nil, userID, year, month)
  if err != nil {
    ss.log.Warn("Usage lookup failed, denying feature", "user_id", userID, "feature", feature, "error", err)
    return &FeatureCheck{Allowed: false, Plan: plan, Reason: "usage lookup failed"}, nil
  }

  switch feature {
  case FeatureGenerateSchema:
    check.Limit = cfg.Limits.MaxSchemasPerMonth
    check.Used = usage.SchemasGenerated
  case FeatureCompetition:
    check.Limit = cfg.Limits.MaxCompetitionsPerMonth
    check.Used = usage.CompetitionsEntered
  }
  check.Remaining = check.Limit - check.Used
  if check.Remaining < 0 {
    check.Remaining = 0
  }
  check.Allowed = check.Used < check.Limit
  if !check.Allowed {
    check.Reason = fmt.Sprintf("monthly limit of %d reached on plan %s", check.Limit, plan)
  }
  return check, nil
}

func (ss *subscriptionService) IncrementUsage(ctx context.Context, userID uuid.UUID, feature string) error {
  var column string
  switch feature {
  case FeatureGenerateSchema:
    column = "schemas_generated"
  case FeatureCompetition:
    column = "competitions_entered"
  default:
    return fmt.Errorf("feature %s is not countable", feature)
  }

  year, month := currentPeriod()
  if err := ss.usageRepo.IncrementCounter(ctx, nil, userID, year, month, column); err != nil {
    return fmt.Errorf("Failed to record usage: %w", err)
  }
  return nil
}
