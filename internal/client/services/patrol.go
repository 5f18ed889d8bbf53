package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/common"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

const recentScansLimit = 10

const checkpointEmbed = `
	*,
	qr_codes (
		qr_code_value,
		location_description,
		gate_name
	)`

// PatrolService backs the officer's patrol screen.
type PatrolService interface {
	// RecentScans returns the officer's latest scans, newest first.
	RecentScans(ctx context.Context, officerID string) ([]models.PatrolScan, error)
	// ActiveCheckpoints lists the checkpoints that can be scanned.
	ActiveCheckpoints(ctx context.Context) ([]models.QRCode, error)
	// Scan records a visit to the checkpoint whose value is code. It fails
	// with common.ErrUnknownCheckpoint when no active checkpoint matches.
	Scan(ctx context.Context, officerID, code, comment string) (*models.PatrolScan, error)
}

type patrolService struct {
	tables Tables
	logger logging.Logger
	clock  clock
}

func NewPatrolService(t Tables, logger logging.Logger) PatrolService {
	return &patrolService{tables: t, logger: logger.With("service", "patrol")}
}

func (s *patrolService) RecentScans(ctx context.Context, officerID string) ([]models.PatrolScan, error) {
	var out []models.PatrolScan
	err := s.tables.From(tableScans).
		Select(checkpointEmbed).
		Eq("officer_id", officerID).
		Order("scan_timestamp", false).
		Limit(recentScansLimit).
		Execute(ctx, &out)
	if err != nil {
		return nil, fmt.Errorf("recent scans: %w", err)
	}
	return out, nil
}

func (s *patrolService) ActiveCheckpoints(ctx context.Context) ([]models.QRCode, error) {
	var out []models.QRCode
	if err := s.tables.From(tableCheckpoints).Select("*").Eq("is_active", true).Execute(ctx, &out); err != nil {
		return nil, fmt.Errorf("active checkpoints: %w", err)
	}
	return out, nil
}

func (s *patrolService) Scan(ctx context.Context, officerID, code, comment string) (*models.PatrolScan, error) {
	if officerID == "" {
		return nil, fmt.Errorf("scan: %w", common.ErrWrongRole)
	}
	code = strings.TrimSpace(code)

	checkpoints, err := s.ActiveCheckpoints(ctx)
	if err != nil {
		return nil, err
	}
	var cp *models.QRCode
	for i := range checkpoints {
		if checkpoints[i].QRCodeValue == code {
			cp = &checkpoints[i]
			break
		}
	}
	if cp == nil {
		return nil, fmt.Errorf("scan %q: %w", code, common.ErrUnknownCheckpoint)
	}

	scan, err := insertOne[models.PatrolScan](ctx, s.tables, tableScans, map[string]any{
		"officer_id":     officerID,
		"qr_code_id":     cp.QRCodeID,
		"comments":       strings.TrimSpace(comment),
		"scan_timestamp": s.clock.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record scan: %w", err)
	}
	scan.Checkpoint = cp
	s.logger.Info(ctx, "patrol scan recorded", "scan_id", scan.ScanID, "checkpoint", cp.Label())
	return scan, nil
}
