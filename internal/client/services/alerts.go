package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/client/notify"
	"github.com/dmitrijs2005/neighborwatch/internal/common"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

// AlertFilter narrows the alert list by status.
type AlertFilter string

const (
	AlertFilterAll       AlertFilter = "all"
	AlertFilterActive    AlertFilter = "active"
	AlertFilterResolved  AlertFilter = "resolved"
	AlertFilterCancelled AlertFilter = "cancelled"
)

// ParseAlertFilter accepts the filter names case-insensitively; "" means all.
func ParseAlertFilter(s string) (AlertFilter, error) {
	switch f := AlertFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return AlertFilterAll, nil
	case AlertFilterAll, AlertFilterActive, AlertFilterResolved, AlertFilterCancelled:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown alert filter %q", common.ErrInvalidArgument, s)
}

const (
	DefaultAlertType        = "Emergency"
	DefaultAlertDescription = "Member raised an alarm"
	alertsChannel           = "emergency-alerts-realtime"
)

// AlertService backs the alerts screen.
//
// Contract:
//   - List: alerts newest first with the raiser's name, narrowed by filter.
//   - Raise: a member raises an active alert.
//   - Resolve: an officer marks an alert resolved.
//   - WatchNew: notify about newly inserted active alerts until the
//     returned channel is unsubscribed.
type AlertService interface {
	List(ctx context.Context, filter AlertFilter) ([]models.EmergencyAlert, error)
	Raise(ctx context.Context, memberID, alertType, description string) (*models.EmergencyAlert, error)
	Resolve(ctx context.Context, alertID, officerID string) error
	WatchNew(ctx context.Context, n notify.Notifier, onNew func(models.EmergencyAlert)) (*backend.Channel, error)
}

type alertService struct {
	tables   Tables
	realtime Realtime
	logger   logging.Logger
	clock    clock
}

// NewAlertService constructs an AlertService.
func NewAlertService(t Tables, rt Realtime, logger logging.Logger) AlertService {
	return &alertService{tables: t, realtime: rt, logger: logger.With("service", "alerts")}
}

func (s *alertService) List(ctx context.Context, filter AlertFilter) ([]models.EmergencyAlert, error) {
	q := s.tables.From(tableAlerts).Select(authorEmbed).Order("created_at", false)
	if filter != "" && filter != AlertFilterAll {
		q = q.Eq("status", string(filter))
	}
	var out []models.EmergencyAlert
	if err := q.Execute(ctx, &out); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

func (s *alertService) Raise(ctx context.Context, memberID, alertType, description string) (*models.EmergencyAlert, error) {
	if memberID == "" {
		return nil, fmt.Errorf("raise alert: %w", common.ErrWrongRole)
	}
	alertType = strings.TrimSpace(alertType)
	if alertType == "" {
		alertType = DefaultAlertType
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = DefaultAlertDescription
	}

	a, err := insertOne[models.EmergencyAlert](ctx, s.tables, tableAlerts, map[string]any{
		"raised_by_member_id": memberID,
		"alert_type":          alertType,
		"description":         description,
		"status":              models.AlertStatusActive,
		"created_at":          s.clock.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("raise alert: %w", err)
	}
	s.logger.Info(ctx, "alert raised", "alert_id", a.AlertID, "alert_type", alertType)
	return a, nil
}

func (s *alertService) Resolve(ctx context.Context, alertID, officerID string) error {
	if officerID == "" {
		return fmt.Errorf("resolve alert: %w", common.ErrWrongRole)
	}
	var out []models.EmergencyAlert
	err := s.tables.From(tableAlerts).Eq("alert_id", alertID).Update(ctx, map[string]any{
		"status":                 models.AlertStatusResolved,
		"resolved_at":            s.clock.now(),
		"resolved_by_officer_id": officerID,
	}, &out)
	if err != nil {
		return fmt.Errorf("resolve alert %s: %w", alertID, err)
	}
	if len(out) == 0 {
		return fmt.Errorf("resolve alert %s: %w", alertID, common.ErrNotFound)
	}
	return nil
}

func (s *alertService) WatchNew(ctx context.Context, n notify.Notifier, onNew func(models.EmergencyAlert)) (*backend.Channel, error) {
	filter := backend.ChangeFilter{Channel: alertsChannel, Event: "INSERT", Schema: "public", Table: tableAlerts}
	ch, err := s.realtime.Subscribe(ctx, filter, s.onInsert(n, onNew))
	if err != nil {
		return nil, fmt.Errorf("watch alerts: %w", err)
	}
	return ch, nil
}

// onInsert notifies only for alerts inserted as active.
func (s *alertService) onInsert(n notify.Notifier, onNew func(models.EmergencyAlert)) backend.ChangeHandler {
	return func(ctx context.Context, ch backend.Change) {
		var a models.EmergencyAlert
		if err := json.Unmarshal(ch.Record, &a); err != nil {
			s.logger.Warn(ctx, "undecodable alert change", "error", err)
			return
		}
		if a.Status != models.AlertStatusActive {
			return
		}
		err := n.Notify(ctx, notify.Notification{
			Title: "New Emergency Alert",
			Body:  a.AlertType + ": " + a.DescriptionOr("No description"),
			Data:  map[string]string{"alert_id": a.AlertID},
		})
		if err != nil {
			s.logger.Warn(ctx, "alert notification failed", "alert_id", a.AlertID, "error", err)
		}
		if onNew != nil {
			onNew(a)
		}
	}
}
