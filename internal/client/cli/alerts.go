package cli

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/client/services"
)

const timeLayout = "2006-01-02 15:04"

// Dashboard prints the home screen summary.
func (a *App) Dashboard(ctx context.Context) error {
	u, err := a.user()
	if err != nil {
		return err
	}
	d, err := a.dashboard.Load(ctx)
	if err != nil {
		return err
	}
	a.printf("Hello, %s\n", u.FullName())
	a.printf("Active alerts: %d\nActive officers: %d\n", d.ActiveAlerts, d.ActiveOfficers)
	if len(d.RecentAlerts) == 0 {
		a.printf("No active emergencies\n")
		return nil
	}
	a.printf("Recent alerts:\n")
	for _, al := range d.RecentAlerts {
		a.printAlert(al)
	}
	return nil
}

func (a *App) printAlert(al models.EmergencyAlert) {
	a.printf("  %s  %-9s %s: %s (%s, by %s)\n",
		al.AlertID, al.Status, al.AlertType, al.DescriptionOr("No description"),
		al.CreatedAt.Local().Format(timeLayout), al.RaisedBy.Name())
}

// Alerts lists alerts, optionally filtered by status.
func (a *App) Alerts(ctx context.Context, args []string) error {
	if _, err := a.user(); err != nil {
		return err
	}
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	f, err := services.ParseAlertFilter(name)
	if err != nil {
		return err
	}
	list, err := a.alerts.List(ctx, f)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.printf("No alerts\n")
		return nil
	}
	for _, al := range list {
		a.printAlert(al)
	}
	return nil
}

// Raise asks for confirmation and raises an emergency alert on behalf of
// the signed-in member.
func (a *App) Raise(ctx context.Context) error {
	m, err := a.member()
	if err != nil {
		return err
	}
	ok, err := Confirm(a.reader, "Raise an emergency alert?", a.out)
	if err != nil || !ok {
		return err
	}
	kind, err := getSimpleText(a.reader, "Alert type (empty for "+services.DefaultAlertType+")", a.out)
	if err != nil {
		return err
	}
	desc, err := getSimpleText(a.reader, "Description (optional)", a.out)
	if err != nil {
		return err
	}
	al, err := a.alerts.Raise(ctx, m.MemberID, kind, desc)
	if err != nil {
		return err
	}
	a.printf("Alert %s raised. Security officers have been notified.\n", al.AlertID)
	return nil
}

// Resolve marks an alert resolved by the signed-in officer.
func (a *App) Resolve(ctx context.Context, args []string) error {
	o, err := a.officer()
	if err != nil {
		return err
	}
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return usage("resolve <alert id>")
	}
	if err := a.alerts.Resolve(ctx, args[0], o.OfficerID); err != nil {
		return err
	}
	a.printf("Alert %s resolved\n", args[0])
	return nil
}
