package services

import (
  "context"
  "errors"
  "os"
  "path/filepath"
  "testing"
  "time"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

func newTestSubscriptions(t *testing.T) (SubscriptionService, *fakeSubscriptionRepo, *fakeUsageRepo) {
  t.Helper()
  subRepo := &fakeSubscriptionRepo{}
  usageRepo := newFakeUsageRepo()
  svc := NewSubscriptionService(testLogger(t), subRepo, usageRepo, defaultPlanCatalog(), PlanFree)
  return svc, subRepo, usageRepo
}

func activeSub(userID uuid.UUID, plan string) *types.Subscription {
  return &types.Subscription{
    ID:                   uuid.New(),
    UserID:               userID,
    StripeSubscriptionID: "sub_" + uuid.NewString(),
    Plan:                 plan,
    Status:               "active",
    CurrentPeriodEnd:     time.Now().Add(24 * time.Hour),
  }
}

func TestResolvePlanDefaultsToFree(t *testing.T) {
  ctx := context.Background()
  svc, _, _ := newTestSubscriptions(t)

  plan, err := svc.ResolvePlan(ctx, uuid.New())
  if err != nil {
    t.Fatalf("ResolvePlan failed: %v", err)
  }
  if plan != PlanFree {
    t.Fatalf("expected free plan, got %s", plan)
  }
}

func TestResolvePlanActiveSubscription(t *testing.T) {
  ctx := context.Background()
  svc, subRepo, _ := newTestSubscriptions(t)
  userID := uuid.New()
  subRepo.subs = append(subRepo.subs, activeSub(userID, PlanPro))

  plan, err := svc.ResolvePlan(ctx, userID)
  if err != nil {
    t.Fatalf("ResolvePlan failed: %v", err)
  }
  if plan != PlanPro {
    t.Fatalf("expected pro plan, got %s", plan)
  }
}

func TestResolvePlanExpiredSubscription(t *testing.T) {
  ctx := context.Background()
  svc, subRepo, _ := newTestSubscriptions(t)
  userID := uuid.New()
  sub := activeSub(userID, PlanPro)
  sub.CurrentPeriodEnd = time.Now().Add(-time.Hour)
  subRepo.subs = append(subRepo.subs, sub)

  plan, err := svc.ResolvePlan(ctx, userID)
  if err != nil {
    t.Fatalf("ResolvePlan failed: %v", err)
  }
  if plan != PlanFree {
    t.Fatalf("expired subscription must fall back to free, got %s", plan)
  }
}

func TestPlanCacheInvalidation(t *testing.T) {
  ctx := context.Background()
  svc, subRepo, _ := newTestSubscriptions(t)
  userID := uuid.New()

  if plan, _ := svc.ResolvePlan(ctx, userID); plan != PlanFree {
    t.Fatalf("expected free, got %s", plan)
  }

  subRepo.subs = append(subRepo.subs, activeSub(userID, PlanMax))

  // Cached value still answers until invalidated.
  if plan, _ := svc.ResolvePlan(ctx, userID); plan != PlanFree {
    t.Fatalf("expected cached free plan, got %s", plan)
  }

  svc.InvalidatePlanCache(userID)
  if plan, _ := svc.ResolvePlan(ctx, userID); plan != PlanMax {
    t.Fatalf("expected max plan after invalidation, got %s", plan)
  }
}

func TestCanUseFeatureCountsDown(t *testing.T) {
  ctx := context.Background()
  svc, _, _ := newTestSubscriptions(t)
  userID := uuid.New()

  limit := defaultPlanCatalog()[PlanFree].Limits.MaxSchemasPerMonth
  for i := 0; i < limit; i++ {
    check, err := svc.CanUseFeature(ctx, userID, FeatureGenerateSchema)
    if err != nil {
      t.Fatalf("CanUseFeature failed: %v", err)
    }
    if !check.Allowed {
      t.Fatalf("use %d of %d should be allowed: %+v", i+1, limit, check)
    }
    if check.Used != i || check.Remaining != limit-i {
      t.Fatalf("counter mismatch at use %d: %+v", i, check)
    }
    if err := svc.IncrementUsage(ctx, userID, FeatureGenerateSchema); err != nil {
      t.Fatalf("IncrementUsage failed: %v", err)
    }
  }

  check, err := svc.CanUseFeature(ctx, userID, FeatureGenerateSchema)
  if err != nil {
    t.Fatalf("CanUseFeature failed: %v", err)
  }
  if check.Allowed {
    t.Fatalf("use beyond the limit must be denied: %+v", check)
  }
  if check.Reason == "" {
    t.Fatal("denial must carry a reason")
  }
}

func TestCanUseFeatureIndependentCounters(t *testing.T) {
  ctx := context.Background()
  svc, _, _ := newTestSubscriptions(t)
  userID := uuid.New()

  if err := svc.IncrementUsage(ctx, userID, FeatureGenerateSchema); err != nil {
    t.Fatalf("IncrementUsage failed: %v", err)
  }

  check, err := svc.CanUseFeature(ctx, userID, FeatureCompetition)
  if err != nil {
    t.Fatalf("CanUseFeature failed: %v", err)
  }
  if check.Used != 0 {
    t.Fatalf("competition counter must be independent, got used=%d", check.Used)
  }
}

func TestCanUseFeatureFailClosed(t *testing.T) {
  ctx := context.Background()
  svc, subRepo, _ := newTestSubscriptions(t)
  subRepo.failErr = errors.New("connection refused")

  check, err := svc.CanUseFeature(ctx, uuid.New(), FeatureGenerateSchema)
  if err != nil {
    t.Fatalf("CanUseFeature failed: %v", err)
  }
  if check.Allowed {
    t.Fatal("a failing plan lookup must deny, not grant")
  }
}

func TestCanUseFeatureUsageLookupFailClosed(t *testing.T) {
  ctx := context.Background()
  svc, _, usageRepo := newTestSubscriptions(t)
  usageRepo.failErr = errors.New("connection refused")

  check, err := svc.CanUseFeature(ctx, uuid.New(), FeatureGenerateSchema)
  if err != nil {
    t.Fatalf("CanUseFeature failed: %v", err)
  }
  if check.Allowed {
    t.Fatal("a failing usage lookup must deny, not grant")
  }
}

func TestBooleanFeaturesByPlan(t *testing.T) {
  ctx := context.Background()

  cases := []struct {
    plan       string
    download   bool
    master     bool
  }{
    {PlanFree, false, false},
    {PlanPro, true, false},
    {PlanMax, true, true},
  }
  for _, tc := range cases {
    svc, subRepo, _ := newTestSubscriptions(t)
    userID := uuid.New()
    if tc.plan != PlanFree {
      subRepo.subs = append(subRepo.subs, activeSub(userID, tc.plan))
    }

    download, err := svc.CanUseFeature(ctx, userID, FeatureDownloadCert)
    if err != nil {
      t.Fatalf("CanUseFeature failed: %v", err)
    }
    master, err := svc.CanUseFeature(ctx, userID, FeatureMasterCert)
    if err != nil {
      t.Fatalf("CanUseFeature failed: %v", err)
    }
    if download.Allowed != tc.download || master.Allowed != tc.master {
      t.Errorf("plan %s: download=%v master=%v, want %v/%v",
        tc.plan, download.Allowed, master.Allowed, tc.download, tc.master)
    }
  }
}

func TestCanUseFeatureUnknownFeature(t *testing.T) {
  ctx := context.Background()
  svc, _, _ := newTestSubscriptions(t)

  if _, err := svc.CanUseFeature(ctx, uuid.New(), "teleportation"); err == nil {
    t.Fatal("expected error for unknown feature")
  }
  if err := svc.IncrementUsage(ctx, uuid.New(), FeatureDownloadCert); err == nil {
    t.Fatal("boolean features must not be countable")
  }
}

func TestLoadPlanCatalogDefaults(t *testing.T) {
  t.Setenv("PLAN_CATALOG_PATH", "")
  catalog, err := LoadPlanCatalog()
  if err != nil {
    t.Fatalf("LoadPlanCatalog failed: %v", err)
  }
  free := catalog[PlanFree]
  if free.Limits.MaxSchemasPerMonth != 5 || free.Limits.MaxCompetitionsPerMonth != 3 {
    t.Fatalf("unexpected free limits: %+v", free.Limits)
  }
  if catalog[PlanMax].Limits.MaxSchemasPerMonth != 50 {
    t.Fatalf("unexpected max limits: %+v", catalog[PlanMax].Limits)
  }
}

func TestLoadPlanCatalogOverride(t *testing.T) {
  path := filepath.Join(t.TempDir(), "plans.yaml")
  content := `pro:
  limits:
    max_schemas_per_month: 99
    max_competitions_per_month: 42
  features:
    can_download_certificates: true
`
  if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
    t.Fatalf("Failed to write catalog: %v", err)
  }
  t.Setenv("PLAN_CATALOG_PATH", path)

  catalog, err := LoadPlanCatalog()
  if err != nil {
    t.Fatalf("LoadPlanCatalog failed: %v", err)
  }
  if catalog[PlanPro].Limits.MaxSchemasPerMonth != 99 {
    t.Fatalf("override not applied: %+v", catalog[PlanPro].Limits)
  }
  // Plans the file omits keep their defaults.
  if catalog[PlanFree].Limits.MaxSchemasPerMonth != 5 {
    t.Fatalf("free plan default lost: %+v", catalog[PlanFree].Limits)
  }
}
