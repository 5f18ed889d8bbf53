package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/client/storage"
	"github.com/dmitrijs2005/neighborwatch/internal/common"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

// ReportKind selects the period a report covers.
type ReportKind string

const (
	ReportWeekly  ReportKind = "weekly"
	ReportMonthly ReportKind = "monthly"
	// ReportCustom covers the current calendar quarter to date.
	ReportCustom ReportKind = "custom"
)

// ParseReportKind validates a kind name.
func ParseReportKind(s string) (ReportKind, error) {
	switch k := ReportKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ReportWeekly, ReportMonthly, ReportCustom:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown report kind %q", common.ErrInvalidArgument, s)
}

// Analytics are the headline figures of a period.
type Analytics struct {
	TotalPatrols      int
	TotalAlerts       int
	ResolvedIncidents int
	ActiveOfficers    int
	// AverageResponseMinutes is the mean time from raising to resolving,
	// over the resolved alerts of the period.
	AverageResponseMinutes float64
	// PatrolCoverage is the share of active checkpoints scanned at least
	// once, in percent.
	PatrolCoverage float64
}

// Report is a generated report.
type Report struct {
	Kind      ReportKind
	Title     string
	From      time.Time
	To        time.Time
	Analytics Analytics
	Alerts    []models.EmergencyAlert
	Scans     []models.PatrolScan
}

// Period renders the covered range as "Jan 2, 2006 - Jan 9, 2006".
func (r *Report) Period() string {
	return r.From.Format("Jan 2, 2006") + " - " + r.To.Format("Jan 2, 2006")
}

// Uploader stores exported reports. *storage.S3Store satisfies it.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ReportService backs the reports screen.
//
// Contract:
//   - Analytics: figures computed from the rows created since the given time.
//   - Generate: a report of the given kind ending at now.
//   - Export: upload the CSV rendering and return a time-limited link.
type ReportService interface {
	Analytics(ctx context.Context, since time.Time) (Analytics, error)
	Generate(ctx context.Context, kind ReportKind, now time.Time) (*Report, error)
	Export(ctx context.Context, r *Report) (string, error)
}

type reportService struct {
	tables   Tables
	uploader Uploader
	linkTTL  time.Duration
	logger   logging.Logger
}

// NewReportService constructs a ReportService. uploader may be nil, in
// which case Export fails with common.ErrUnavailable.
func NewReportService(t Tables, uploader Uploader, linkTTL time.Duration, logger logging.Logger) ReportService {
	if linkTTL <= 0 {
		linkTTL = 15 * time.Minute
	}
	return &reportService{tables: t, uploader: uploader, linkTTL: linkTTL, logger: logger.With("service", "reports")}
}

type activity struct {
	alerts      []models.EmergencyAlert
	scans       []models.PatrolScan
	checkpoints []models.QRCode
	officers    int
}

func (s *reportService) load(ctx context.Context) (*activity, error) {
	var a activity
	if err := s.tables.From(tableAlerts).Select("*").Order("created_at", false).Execute(ctx, &a.alerts); err != nil {
		return nil, fmt.Errorf("report alerts: %w", err)
	}
	if err := s.tables.From(tableScans).Select(checkpointEmbed).Order("scan_timestamp", false).Execute(ctx, &a.scans); err != nil {
		return nil, fmt.Errorf("report scans: %w", err)
	}
	if err := s.tables.From(tableCheckpoints).Select("*").Eq("is_active", true).Execute(ctx, &a.checkpoints); err != nil {
		return nil, fmt.Errorf("report checkpoints: %w", err)
	}
	n, err := s.tables.From(tableOfficers).Eq("is_permanently_deleted", false).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("report officers: %w", err)
	}
	a.officers = n
	return &a, nil
}

// within keeps the rows of [since, until]. A zero until is unbounded.
func (a *activity) within(since, until time.Time) *activity {
	in := func(t time.Time) bool {
		return !t.Before(since) && (until.IsZero() || !t.After(until))
	}
	out := &activity{checkpoints: a.checkpoints, officers: a.officers}
	for _, al := range a.alerts {
		if in(al.CreatedAt) {
			out.alerts = append(out.alerts, al)
		}
	}
	for _, sc := range a.scans {
		if in(sc.ScanTimestamp) {
			out.scans = append(out.scans, sc)
		}
	}
	return out
}

func (a *activity) analytics() Analytics {
	an := Analytics{
		TotalPatrols:   len(a.scans),
		TotalAlerts:    len(a.alerts),
		ActiveOfficers: a.officers,
	}

	var responseTotal time.Duration
	var responded int
	for _, al := range a.alerts {
		if al.Status != models.AlertStatusResolved {
			continue
		}
		an.ResolvedIncidents++
		if al.ResolvedAt != nil && al.ResolvedAt.After(al.CreatedAt) {
			responseTotal += al.ResolvedAt.Sub(al.CreatedAt)
			responded++
		}
	}
	if responded > 0 {
		an.AverageResponseMinutes = round1(responseTotal.Minutes() / float64(responded))
	}

	if len(a.checkpoints) > 0 {
		active := make(map[string]bool, len(a.checkpoints))
		for _, cp := range a.checkpoints {
			active[cp.QRCodeID] = true
		}
		visited := make(map[string]bool)
		for _, sc := range a.scans {
			if active[sc.QRCodeID] {
				visited[sc.QRCodeID] = true
			}
		}
		an.PatrolCoverage = round1(100 * float64(len(visited)) / float64(len(active)))
	}
	return an
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func (s *reportService) Analytics(ctx context.Context, since time.Time) (Analytics, error) {
	a, err := s.load(ctx)
	if err != nil {
		return Analytics{}, err
	}
	return a.within(since, time.Time{}).analytics(), nil
}

func reportPeriod(kind ReportKind, now time.Time) (string, time.Time) {
	switch kind {
	case ReportWeekly:
		return "Weekly Patrol Summary", now.AddDate(0, 0, -7)
	case ReportMonthly:
		return "Monthly Emergency Response Analysis", now.AddDate(0, -1, 0)
	default:
		q := (int(now.Month()) - 1) / 3
		start := time.Date(now.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, now.Location())
		return fmt.Sprintf("Q%d %d Report", q+1, now.Year()), start
	}
}

func (s *reportService) Generate(ctx context.Context, kind ReportKind, now time.Time) (*Report, error) {
	if _, err := ParseReportKind(string(kind)); err != nil {
		return nil, err
	}
	a, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	title, from := reportPeriod(kind, now)
	in := a.within(from, now)
	return &Report{
		Kind:      kind,
		Title:     title,
		From:      from,
		To:        now,
		Analytics: in.analytics(),
		Alerts:    in.alerts,
		Scans:     in.scans,
	}, nil
}

func (s *reportService) Export(ctx context.Context, r *Report) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("export report: %w: no report storage configured", common.ErrUnavailable)
	}
	var buf bytes.Buffer
	if err := r.WriteCSV(&buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	key := storage.ReportKey(r.To)
	if err := s.uploader.Upload(ctx, key, &buf, "text/csv"); err != nil {
		return "", fmt.Errorf("export report: %w", err)
	}
	url, err := s.uploader.PresignGet(ctx, key, s.linkTTL)
	if err != nil {
		return "", fmt.Errorf("export report: %w", err)
	}
	s.logger.Info(ctx, "report exported", "kind", string(r.Kind), "key", key)
	return url, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteCSV renders the report as three sections separated by blank
// records: summary metrics, alerts and patrol scans.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	an := r.Analytics
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

	records := [][]string{
		{"report", r.Title},
		{"period", r.Period()},
		{"metric", "value"},
		{"total_patrols", strconv.Itoa(an.TotalPatrols)},
		{"total_alerts", strconv.Itoa(an.TotalAlerts)},
		{"resolved_incidents", strconv.Itoa(an.ResolvedIncidents)},
		{"active_officers", strconv.Itoa(an.ActiveOfficers)},
		{"average_response_minutes", f(an.AverageResponseMinutes)},
		{"patrol_coverage_percent", f(an.PatrolCoverage)},
		{},
		{"alert_id", "alert_type", "status", "description", "created_at", "resolved_at"},
	}
	for _, a := range r.Alerts {
		ca := a.CreatedAt
		records = append(records, []string{a.AlertID, a.AlertType, string(a.Status), a.DescriptionOr(""), formatTime(&ca), formatTime(a.ResolvedAt)})
	}
	records = append(records, []string{}, []string{"scan_id", "officer_id", "checkpoint", "scan_timestamp", "comments"})
	for _, sc := range r.Scans {
		label := ""
		if sc.Checkpoint != nil {
			label = sc.Checkpoint.Label()
		}
		comments := ""
		if sc.Comments != nil {
			comments = *sc.Comments
		}
		ts := sc.ScanTimestamp
		records = append(records, []string{sc.ScanID, sc.OfficerID, label, formatTime(&ts), comments})
	}

	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}
