package services

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/font"

	"github.com/sqlmentor/sqlmentor-backend/internal/logger"
	"github.com/sqlmentor/sqlmentor-backend/internal/repos"
)

// CertificateService renders completion certificates as PNGs. Both calls
// are gated by plan flags.
type CertificateService interface {
	RenderSessionCertificate(ctx context.Context, userID uuid.UUID, sessionID string) ([]byte, error)
	RenderMasterCertificate(ctx context.Context, userID uuid.UUID) ([]byte, error)
}

type certificateService struct {
	log          *logger.Logger
	subscription SubscriptionService
	sessionRepo  repos.PracticeSessionRepo
	userRepo     repos.UserRepo

	titleFace font.Face
	bodyFace  font.Face
	smallFace font.Face
}

func NewCertificateService(
	log *logger.Logger,
	subscription SubscriptionService,
	sessionRepo repos.PracticeSessionRepo,
	userRepo repos.UserRepo,
) (CertificateService, error) {
	serviceLog := log.With("service", "CertificateService")

	fontPath := strings.TrimSpace(os.Getenv("CERTIFICATE_FONT"))
	if fontPath == "" {
		return nil, fmt.Errorf("Env var CERTIFICATE_FONT is empty")
	}
	serviceLog.Info("Loading certificate font", "font", fontPath)

	titleFace, err := loadFontFace(fontPath, 64)
	if err != nil {
		return nil, fmt.Errorf("could not load certificate font: %w", err)
	}
	bodyFace, err := loadFontFace(fontPath, 36)
	if err != nil {
		return nil, fmt.Errorf("could not load certificate font: %w", err)
	}
	smallFace, err := loadFontFace(fontPath, 22)
	if err != nil {
		return nil, fmt.Errorf("could not load certificate font: %w", err)
	}

	return &certificateService{
		log:          serviceLog,
		subscription: subscription,
		sessionRepo:  sessionRepo,
		userRepo:     userRepo,
		titleFace:    titleFace,
		bodyFace:     bodyFace,
		smallFace:    smallFace,
	}, nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return face, nil
}

func (cs *certificateService) userName(ctx context.Context, userID uuid.UUID) (string, error) {
	users, err := cs.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return "", fmt.Errorf("Failed to load user: %w", err)
	}
	if len(users) == 0 {
		return "", fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u := users[0]
	return strings.TrimSpace(strings.Title(u.FirstName) + " " + strings.Title(u.LastName)), nil
}

func (cs *certificateService) RenderSessionCertificate(ctx context.Context, userID uuid.UUID, sessionID string) ([]byte, error) {
	check, err := cs.subscription.CanUseFeature(ctx, userID, FeatureDownloadCert)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, check.Reason)
	}

	sessions, err := cs.sessionRepo.GetByIDs(ctx, nil, []string{sessionID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load practice session: %w", err)
	}
	if len(sessions) == 0 || sessions[0].UserID != userID {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	session := sessions[0]

	name, err := cs.userName(ctx, userID)
	if err != nil {
		return nil, err
	}

	subtitle := fmt.Sprintf("completed a %s SQL practice session", session.Difficulty)
	detail := fmt.Sprintf("Score: %d points", session.TotalScore)
	return cs.render("Certificate of Completion", name, subtitle, detail)
}

func (cs *certificateService) RenderMasterCertificate(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	check, err := cs.subscription.CanUseFeature(ctx, userID, FeatureMasterCert)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, check.Reason)
	}

	sessions, err := cs.sessionRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load practice sessions: %w", err)
	}

	// The master certificate requires a scored session at every level.
	scored := map[string]bool{}
	total := 0
	for _, s := range sessions {
		if s.TotalScore > 0 {
			scored[s.Difficulty] = true
			total += s.TotalScore
		}
	}
	for _, level := range []string{"basic", "intermediate", "advanced"} {
		if !scored[level] {
			return nil, fmt.Errorf("%w: no scored %s session yet", ErrNotFound, level)
		}
	}

	name, err := cs.userName(ctx, userID)
	if err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("Total: %d points across all levels", total)
	return cs.render("SQL Master Certificate", name, "mastered basic, intermediate and advanced SQL", detail)
}

func (cs *certificateService) render(title, name, subtitle, detail string) ([]byte, error) {
	const width, height = 1200, 850

	dc := gg.NewContext(width, height)

	dc.SetColor(color.NRGBA{R: 0xFA, G: 0xF8, B: 0xF2, A: 0xFF})
	dc.DrawRectangle(0, 0, width, height)
	dc.Fill()

	// Border
	dc.SetColor(color.NRGBA{R: 0x1E, G: 0x3A, B: 0x5F, A: 0xFF})
	dc.SetLineWidth(6)
	dc.DrawRectangle(40, 40, width-80, height-80)
	dc.Stroke()

	cx := float64(width) / 2

	dc.SetColor(color.NRGBA{R: 0x1E, G: 0x3A, B: 0x5F, A: 0xFF})
	dc.SetFontFace(cs.titleFace)
	dc.DrawStringAnchored(title, cx, 200, 0.5, 0.5)

	dc.SetFontFace(cs.smallFace)
	dc.DrawStringAnchored("awarded to", cx, 300, 0.5, 0.5)

	dc.SetFontFace(cs.titleFace)
	dc.SetColor(color.NRGBA{R: 0x8A, G: 0x5A, B: 0x00, A: 0xFF})
	dc.DrawStringAnchored(name, cx, 400, 0.5, 0.5)

	dc.SetColor(color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xFF})
	dc.SetFontFace(cs.bodyFace)
	dc.DrawStringAnchored("who "+subtitle, cx, 500, 0.5, 0.5)
	dc.DrawStringAnchored(detail, cx, 570, 0.5, 0.5)

	dc.SetFontFace(cs.smallFace)
	dc.DrawStringAnchored(time.Now().UTC().Format("January 2, 2006"), cx, 700, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
