package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

// PatrolStats summarizes patrol activity around one address.
type PatrolStats struct {
	Total    int
	LastWeek int
	LastScan *time.Time
}

// PatrolStatsService backs the member's patrol statistics screen.
type PatrolStatsService interface {
	// ForAddress counts scans at checkpoints whose location mentions
	// address, ignoring case. An empty address matches nothing.
	ForAddress(ctx context.Context, address string, now time.Time) (PatrolStats, error)
}

type patrolStatsService struct {
	tables Tables
	logger logging.Logger
}

func NewPatrolStatsService(t Tables, logger logging.Logger) PatrolStatsService {
	return &patrolStatsService{tables: t, logger: logger.With("service", "patrol_stats")}
}

func (s *patrolStatsService) ForAddress(ctx context.Context, address string, now time.Time) (PatrolStats, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return PatrolStats{}, nil
	}

	var scans []models.PatrolScan
	err := s.tables.From(tableScans).
		Select("*, qr_codes ( location_description )").
		Order("scan_timestamp", false).
		Execute(ctx, &scans)
	if err != nil {
		return PatrolStats{}, fmt.Errorf("patrol stats: %w", err)
	}

	weekAgo := now.AddDate(0, 0, -7)
	var st PatrolStats
	for _, sc := range scans {
		if sc.Checkpoint == nil || !strings.Contains(strings.ToLower(sc.Checkpoint.Location()), address) {
			continue
		}
		st.Total++
		if !sc.ScanTimestamp.Before(weekAgo) {
			st.LastWeek++
		}
		if st.LastScan == nil || sc.ScanTimestamp.After(*st.LastScan) {
			ts := sc.ScanTimestamp
			st.LastScan = &ts
		}
	}
	return st, nil
}
