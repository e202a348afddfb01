package services

import (
  "fmt"
  "os"
  "gopkg.in/yaml.v3"
)

// Feature names checked against a plan. The first two are countable and
// draw down a monthly allowance; the last two are simple plan flags.
const (
  FeatureGenerateSchema = "generate_schema"
  FeatureCompetition    = "competition"
  FeatureDownloadCert   = "download_certificate"
  FeatureMasterCert     = "master_certificate"
)

const (
  PlanFree = "free"
  PlanPro  = "pro"
  PlanMax  = "max"
)

// PlanLimits are a plan's monthly allowances for countable features.
type PlanLimits struct {
  MaxSchemasPerMonth      int `yaml:"max_schemas_per_month"`
  MaxCompetitionsPerMonth int `yaml:"max_competitions_per_month"`
}

// PlanFeatures are a plan's boolean entitlements.
type PlanFeatures struct {
  CanDownloadCertificates bool   `yaml:"can_download_certificates"`
  CanGetMasterCertificate bool   `yaml:"can_get_master_certificate"`
  AIModelTier             string `yaml:"ai_model_tier"`
}

// PlanConfig is one plan's full configuration.
type PlanConfig struct {
  Limits   PlanLimits   `yaml:"limits"`
  Features PlanFeatures `yaml:"features"`
}

// PlanCatalog maps plan name to its configuration.
type PlanCatalog map[string]PlanConfig

func defaultPlanCatalog() PlanCatalog {
  return PlanCatalog{
    PlanFree: {
      Limits:   PlanLimits{MaxSchemasPerMonth: 5, MaxCompetitionsPerMonth: 3},
      Features: PlanFeatures{AIModelTier: "standard"},
    },
    PlanPro: {
      Limits:   PlanLimits{MaxSchemasPerMonth: 15, MaxCompetitionsPerMonth: 15},
      Features: PlanFeatures{CanDownloadCertificates: true, AIModelTier: "standard"},
    },
    PlanMax: {
      Limits: PlanLimits{MaxSchemasPerMonth: 50, MaxCompetitionsPerMonth: 50},
      Features: PlanFeatures{
        CanDownloadCertificates: true,
        CanGetMasterCertificate: true,
        AIModelTier:             "premium",
      },
    },
  }
}

// LoadPlanCatalog returns the plan catalog, overridden from the YAML file
// at PLAN_CATALOG_PATH when set. The file replaces only the plans it
// names; plans it omits keep their defaults. A catalog without a free plan
// is rejected because plan resolution falls back to it.
func LoadPlanCatalog() (PlanCatalog, error) {
  catalog := defaultPlanCatalog()

  path := os.Getenv("PLAN_CATALOG_PATH")
  if path == "" {
    return catalog, nil
  }

  raw, err := os.ReadFile(path)
  if err != nil {
    return nil, fmt.Errorf("Failed to read plan catalog %s: %w", path, err)
  }

  var overrides PlanCatalog
  if err := yaml.Unmarshal(raw, &overrides); err != nil {
    return nil, fmt.Errorf("Failed to parse plan catalog %s: %w", path, err)
  }
  for name, cfg := range overrides {
    catalog[name] = cfg
  }

  if _, ok := catalog[PlanFree]; !ok {
    return nil, fmt.Errorf("plan catalog must define the %q plan", PlanFree)
  }
  return catalog, nil
}
