package services

import (
  "errors"
  "fmt"
)

// Sentinel errors that handlers map to response codes. Wrap them with
// fmt.Errorf("...: %w", Err...) so errors.Is still matches.
var (
  // ErrGenerationFailed means the model could not produce usable output
  // after all permitted attempts.
  ErrGenerationFailed = errors.New("generation failed")

  // ErrApplicationFailed means generated DDL could not be applied to a
  // workspace after the permitted repair attempt.
  ErrApplicationFailed = errors.New("schema application failed")

  // ErrSandboxUnavailable means a workspace could not be opened or has
  // no applied schema to work against.
  ErrSandboxUnavailable = errors.New("workspace unavailable")

  // ErrQuotaExceeded means the user's plan does not permit the feature
  // or its monthly allowance is used up.
  ErrQuotaExceeded = errors.New("plan quota exceeded")

  // ErrNotFound covers missing sessions, schemas, and submissions.
  ErrNotFound = errors.New("not found")

  // ErrPopulationInsufficient matches any PopulationInsufficientError.
  ErrPopulationInsufficient = errors.New("population insufficient")
)

// PopulationInsufficientError reports a population run whose outcome did
// not meet the acceptance heuristic, carrying the observed table counts.
type PopulationInsufficientError struct {
  TotalTables     int
  PopulatedTables int
  RowCounts       map[string]int
}

func (e *PopulationInsufficientError) Error() string {
  return fmt.Sprintf("population insufficient: %d of %d tables populated", e.PopulatedTables, e.TotalTables)
}

func (e *PopulationInsufficientError) Is(target error) bool {
  return target == ErrPopulationInsufficient
}
