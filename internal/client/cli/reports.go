package cli

import (
	"context"

	"github.com/dmitrijs2005/neighborwatch/internal/client/services"
)

// Report generates a report, prints its figures and offers to export it.
func (a *App) Report(ctx context.Context, args []string) error {
	if _, err := a.user(); err != nil {
		return err
	}
	if len(args) != 1 {
		return usage("report <weekly|monthly|custom>")
	}
	kind, err := services.ParseReportKind(args[0])
	if err != nil {
		return err
	}
	r, err := a.reports.Generate(ctx, kind, a.now())
	if err != nil {
		return err
	}

	an := r.Analytics
	a.printf("%s\n%s\n", r.Title, r.Period())
	a.printf("Total patrols:       %d\n", an.TotalPatrols)
	a.printf("Total alerts:        %d\n", an.TotalAlerts)
	a.printf("Resolved incidents:  %d\n", an.ResolvedIncidents)
	a.printf("Active officers:     %d\n", an.ActiveOfficers)
	a.printf("Avg response (min):  %.1f\n", an.AverageResponseMinutes)
	a.printf("Patrol coverage:     %.1f%%\n", an.PatrolCoverage)

	ok, err := Confirm(a.reader, "Export as CSV?", a.out)
	if err != nil || !ok {
		return err
	}
	url, err := a.reports.Export(ctx, r)
	if err != nil {
		return err
	}
	a.printf("Download link: %s\n", url)
	return nil
}
