package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

const dashboardAlerts = 5

// Dashboard is the home screen summary.
type Dashboard struct {
	RecentAlerts   []models.EmergencyAlert
	ActiveAlerts   int
	ActiveOfficers int
}

// DashboardService backs the home screen.
type DashboardService interface {
	Load(ctx context.Context) (*Dashboard, error)
}

type dashboardService struct {
	tables Tables
	logger logging.Logger
}

func NewDashboardService(t Tables, logger logging.Logger) DashboardService {
	return &dashboardService{tables: t, logger: logger.With("service", "dashboard")}
}

// Load fetches the newest active alerts and the active alert and officer
// counts.
func (s *dashboardService) Load(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	err := s.tables.From(tableAlerts).
		Select("*").
		Eq("status", string(models.AlertStatusActive)).
		Order("created_at", false).
		Limit(dashboardAlerts).
		Execute(ctx, &d.RecentAlerts)
	if err != nil {
		return nil, fmt.Errorf("dashboard alerts: %w", err)
	}

	if d.ActiveAlerts, err = s.tables.From(tableAlerts).Eq("status", string(models.AlertStatusActive)).Count(ctx); err != nil {
		return nil, fmt.Errorf("dashboard alert count: %w", err)
	}
	if d.ActiveOfficers, err = s.tables.From(tableOfficers).Eq("is_permanently_deleted", false).Count(ctx); err != nil {
		return nil, fmt.Errorf("dashboard officer count: %w", err)
	}
	return &d, nil
}
