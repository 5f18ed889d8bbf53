package cli

import (
	"context"
	"strings"
)

// Patrol prints the active checkpoints and the officer's latest scans.
func (a *App) Patrol(ctx context.Context) error {
	o, err := a.officer()
	if err != nil {
		return err
	}
	cps, err := a.patrol.ActiveCheckpoints(ctx)
	if err != nil {
		return err
	}
	a.printf("Checkpoints:\n")
	for _, c := range cps {
		a.printf("  %-20s %s\n", c.QRCodeValue, c.Label())
	}

	scans, err := a.patrol.RecentScans(ctx, o.OfficerID)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		a.printf("No scans yet\n")
		return nil
	}
	a.printf("Recent scans:\n")
	for _, s := range scans {
		where := s.QRCodeID
		if s.Checkpoint != nil {
			where = s.Checkpoint.Label()
		}
		a.printf("  %s  %s\n", s.ScanTimestamp.Local().Format(timeLayout), where)
	}
	return nil
}

// Scan records a checkpoint visit. Words after the code become the
// comment; without them the comment is asked for.
func (a *App) Scan(ctx context.Context, args []string) error {
	o, err := a.officer()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usage("scan <code> [comment]")
	}
	comment := strings.Join(args[1:], " ")
	if comment == "" {
		if comment, err = getSimpleText(a.reader, "Comment (optional)", a.out); err != nil {
			return err
		}
	}
	s, err := a.patrol.Scan(ctx, o.OfficerID, args[0], comment)
	if err != nil {
		return err
	}
	a.printf("Checkpoint recorded at %s\n", s.ScanTimestamp.Local().Format(timeLayout))
	return nil
}

// Stats prints patrol activity around the member's house.
func (a *App) Stats(ctx context.Context) error {
	m, err := a.member()
	if err != nil {
		return err
	}
	addr := m.Address()
	if addr == "" {
		a.printf("Set your house address first (command: house)\n")
		return nil
	}
	st, err := a.stats.ForAddress(ctx, addr, a.now())
	if err != nil {
		return err
	}
	a.printf("Patrols near %s\nTotal: %d\nLast 7 days: %d\n", addr, st.Total, st.LastWeek)
	if st.LastScan != nil {
		a.printf("Last patrol: %s\n", st.LastScan.Local().Format(timeLayout))
	}
	return nil
}

// House saves the member's address and prints the house checkpoint code.
func (a *App) House(ctx context.Context) error {
	m, err := a.member()
	if err != nil {
		return err
	}
	if addr := m.Address(); addr != "" {
		a.printf("Current address: %s\n", addr)
	}
	number, err := getSimpleText(a.reader, "House number", a.out)
	if err != nil {
		return err
	}
	street, err := getSimpleText(a.reader, "Street address", a.out)
	if err != nil {
		return err
	}
	code, err := a.house.Save(ctx, m.MemberID, number, street)
	if err != nil {
		return err
	}
	a.printf("House saved. Checkpoint code: %s\n", code)
	return nil
}
