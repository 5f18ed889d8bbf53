package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/client/notify"
	"github.com/dmitrijs2005/neighborwatch/internal/client/services"
	"github.com/dmitrijs2005/neighborwatch/internal/client/session"
	"github.com/dmitrijs2005/neighborwatch/internal/common"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

// roleWait bounds how long login waits for the role row before the
// prompt is shown.
const roleWait = 5 * time.Second

// Session is the auth surface the CLI drives. *session.Manager satisfies it.
type Session interface {
	State() session.State
	SignIn(ctx context.Context, email, password string) *session.AuthError
	SignUp(ctx context.Context, req session.SignUpRequest) *session.AuthError
	SignOut(ctx context.Context)
	RoleTask() *session.RoleTask
}

// MountFunc attaches the session to the auth client. It returns a channel
// closed when the initial check is over and a function that detaches.
type MountFunc func(ctx context.Context) (ready <-chan struct{}, unmount func())

// Deps are the collaborators of an App.
type Deps struct {
	Session   Session
	Mount     MountFunc
	Alerts    services.AlertService
	Patrol    services.PatrolService
	Community services.CommunityService
	House     services.HouseService
	Stats     services.PatrolStatsService
	Dashboard services.DashboardService
	Reports   services.ReportService
	Notifier  notify.Notifier
	Logger    logging.Logger

	In  io.Reader
	Out io.Writer
}

// App is the interactive client.
type App struct {
	session   Session
	mount     MountFunc
	alerts    services.AlertService
	patrol    services.PatrolService
	community services.CommunityService
	house     services.HouseService
	stats     services.PatrolStatsService
	dashboard services.DashboardService
	reports   services.ReportService
	notifier  notify.Notifier
	logger    logging.Logger

	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time

	mu       sync.Mutex
	stopFeed func()
}

func NewApp(d Deps) *App {
	in, out := d.In, d.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	n := d.Notifier
	if n == nil {
		n = notify.NewWriterNotifier(out)
	}
	return &App{
		session:   d.Session,
		mount:     d.Mount,
		alerts:    d.Alerts,
		patrol:    d.Patrol,
		community: d.Community,
		house:     d.House,
		stats:     d.Stats,
		dashboard: d.Dashboard,
		reports:   d.Reports,
		notifier:  n,
		logger:    logger.With("component", "cli"),
		reader:    bufio.NewReader(in),
		out:       out,
		now:       time.Now,
	}
}

// Run mounts the session, waits for the initial check and serves commands
// until the user exits or ctx ends.
func (a *App) Run(ctx context.Context) {
	if a.mount != nil {
		ready, unmount := a.mount(ctx)
		defer unmount()
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
	}
	defer a.stopWatch()

	a.printf("Neighborhood Watch CLI (type 'help' for commands)\n")
	if a.isLoggedIn() {
		a.waitRole(ctx)
		a.printf("Welcome back, %s\n", a.session.State().User.FullName())
	}
	a.syncWatch(ctx)

	runREPL(ctx, a, a.status, a.reader, a.out)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) isLoggedIn() bool {
	return a.session.State().SignedIn()
}

func (a *App) isOfficer() bool {
	return a.session.State().SecurityOfficer != nil
}

func (a *App) isMember() bool {
	return a.session.State().NeighborhoodMember != nil
}

// status renders the prompt prefix: "(email role)" when signed in.
func (a *App) status() string {
	u := a.session.State().User
	if u == nil {
		return ""
	}
	return fmt.Sprintf("(%s %s)", u.Email, u.UserType)
}

func (a *App) user() (*models.User, error) {
	u := a.session.State().User
	if u == nil {
		return nil, common.ErrNotSignedIn
	}
	return u, nil
}

func (a *App) member() (*models.NeighborhoodMember, error) {
	st := a.session.State()
	if st.User == nil {
		return nil, common.ErrNotSignedIn
	}
	if st.NeighborhoodMember == nil {
		return nil, fmt.Errorf("%w: neighborhood member profile not found", common.ErrWrongRole)
	}
	return st.NeighborhoodMember, nil
}

func (a *App) officer() (*models.SecurityOfficer, error) {
	st := a.session.State()
	if st.User == nil {
		return nil, common.ErrNotSignedIn
	}
	if st.SecurityOfficer == nil {
		return nil, fmt.Errorf("%w: security officer profile not found", common.ErrWrongRole)
	}
	return st.SecurityOfficer, nil
}

// waitRole blocks until the role row of the current user is loaded, up to
// roleWait.
func (a *App) waitRole(ctx context.Context) {
	task := a.session.RoleTask()
	if task == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, roleWait)
	defer cancel()
	if err := task.Wait(ctx); err != nil {
		a.logger.Warn(ctx, "role profile unavailable", "error", err)
	}
}

// syncWatch keeps the realtime alert feed open exactly while an officer
// is signed in.
func (a *App) syncWatch(ctx context.Context) {
	if a.alerts == nil {
		return
	}
	a.mu.Lock()
	open := a.stopFeed != nil
	a.mu.Unlock()

	switch officer := a.isOfficer(); {
	case officer && !open:
		ch, err := a.alerts.WatchNew(ctx, a.notifier, nil)
		if err != nil {
			a.logger.Warn(ctx, "alert feed unavailable", "error", err)
			return
		}
		a.mu.Lock()
		a.stopFeed = unsubscriber(ch)
		a.mu.Unlock()
	case !officer && open:
		a.stopWatch()
	}
}

func (a *App) stopWatch() {
	a.mu.Lock()
	stop := a.stopFeed
	a.stopFeed = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func unsubscriber(ch *backend.Channel) func() {
	if ch == nil {
		return func() {}
	}
	return ch.Unsubscribe
}
