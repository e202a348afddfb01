package services

import (
  "context"
  "fmt"
  "time"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/repos"
)

// DashboardStats is the aggregate view backing the user dashboard.
type DashboardStats struct {
  TotalSessions     int     `json:"total_sessions"`
  TotalCompetitions int     `json:"total_competitions"`
  Wins              int     `json:"wins"`
  Losses            int     `json:"losses"`
  Ties              int     `json:"ties"`
  AverageScore      float64 `json:"average_score"`
  Points            int     `json:"points"`
  StreakDays        int     `json:"streak_days"`
}

type DashboardService interface {
  Stats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error)
}

type dashboardService struct {
  log            *logger.Logger
  userRepo       repos.UserRepo
  sessionRepo    repos.PracticeSessionRepo
  submissionRepo repos.CompetitionSubmissionRepo
}

func NewDashboardService(
  log *logger.Logger,
  userRepo repos.UserRepo,
  sessionRepo repos.PracticeSessionRepo,
  submissionRepo repos.CompetitionSubmissionRepo,
) DashboardService {
  serviceLog := log.With("service", "DashboardService")
  return &dashboardService{
    log:            serviceLog,
    userRepo:       userRepo,
    sessionRepo:    sessionRepo,
    submissionRepo: submissionRepo,
  }
}

func (ds *dashboardService) Stats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
  users, err := ds.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
  if err != nil {
    return nil, fmt.Errorf("Failed to load user: %w", err)
  }
  if len(users) == 0 {
    return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
  }

  sessions, err := ds.sessionRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
  if err != nil {
    return nil, fmt.Errorf("Failed to load practice sessions: %w", err)
  }
  submissions, err := ds.submissionRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
  if err != nil {
    return nil, fmt.Errorf("Failed to load competitions: %w", err)
  }

  stats := &DashboardStats{
    TotalSessions:     len(sessions),
    TotalCompetitions: len(submissions),
    Points:            users[0].Points,
  }

  scoreSum := 0
  days := make(map[string]bool, len(sessions))
  for _, s := range sessions {
    scoreSum += s.TotalScore
    days[s.CreatedAt.UTC().Format("2006-01-02")] = true
  }
  if len(sessions) > 0 {
    stats.AverageScore = float64(scoreSum) / float64(len(sessions))
  }
  stats.StreakDays = streakDays(days, time.Now().UTC())

  for _, sub := range submissions {
    switch sub.Result {
    case "win":
      stats.Wins++
    case "lose":
      stats.Losses++
    case "tie":
      stats.Ties++
    }
  }

  return stats, nil
}

// streakDays counts consecutive practice days ending today or yesterday,
// so a streak survives until a full day is missed.
func streakDays(days map[string]bool, now time.Time) int {
  day := now
  if !days[day.Format("2006-01-02")] {
    day = day.AddDate(0, 0, -1)
    if !days[day.Format("2006-01-02")] {
      return 0
    }
  }
  streak := 0
  for days[day.Format("2006-01-02")] {
    streak++
    day = day.AddDate(0, 0, -1)
  }
  return streak
}
