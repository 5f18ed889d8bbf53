package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/neighborwatch/internal/common"
)

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	isOfficer() bool
	isMember() bool
	syncWatch(ctx context.Context)

	Login(ctx context.Context) error
	Signup(ctx context.Context) error
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) error
	Dashboard(ctx context.Context) error
	Alerts(ctx context.Context, args []string) error
	Raise(ctx context.Context) error
	Resolve(ctx context.Context, args []string) error
	Patrol(ctx context.Context) error
	Scan(ctx context.Context, args []string) error
	Posts(ctx context.Context) error
	Post(ctx context.Context) error
	Comments(ctx context.Context, args []string) error
	Comment(ctx context.Context, args []string) error
	House(ctx context.Context) error
	Stats(ctx context.Context) error
	Report(ctx context.Context, args []string) error
}

func helpText(a execIface) string {
	switch {
	case !a.isLoggedIn():
		return "Available commands: login, signup, exit"
	case a.isOfficer():
		return "Available commands: whoami, dashboard, alerts [all|active|resolved|cancelled], resolve <id>, patrol, scan <code>, posts, comments <post>, report <weekly|monthly|custom>, logout, exit"
	case a.isMember():
		return "Available commands: whoami, dashboard, alerts [filter], raise, posts, post, comments <post>, comment <post>, house, stats, report <kind>, logout, exit"
	}
	return "Available commands: whoami, dashboard, alerts [filter], posts, comments <post>, report <kind>, logout, exit"
}

// runREPL reads commands from reader, one per line, and dispatches them to
// a. The first token is the command; the rest are its arguments. The loop
// ends on EOF, on "exit" or "quit", or when ctx is done.
//
// Errors returned by handlers are printed and the loop continues. After
// every command the realtime alert feed is brought in line with the
// signed-in role.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(out, "nw %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			fmt.Fprintln(out, helpText(a))
		case "login":
			cmdErr = a.Login(ctx)
		case "signup", "register":
			cmdErr = a.Signup(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "whoami":
			cmdErr = a.Whoami(ctx)
		case "dashboard", "home":
			cmdErr = a.Dashboard(ctx)
		case "alerts":
			cmdErr = a.Alerts(ctx, args)
		case "raise":
			cmdErr = a.Raise(ctx)
		case "resolve":
			cmdErr = a.Resolve(ctx, args)
		case "patrol":
			cmdErr = a.Patrol(ctx)
		case "scan":
			cmdErr = a.Scan(ctx, args)
		case "posts":
			cmdErr = a.Posts(ctx)
		case "post":
			cmdErr = a.Post(ctx)
		case "comments":
			cmdErr = a.Comments(ctx, args)
		case "comment":
			cmdErr = a.Comment(ctx, args)
		case "house":
			cmdErr = a.House(ctx)
		case "stats":
			cmdErr = a.Stats(ctx)
		case "report":
			cmdErr = a.Report(ctx, args)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(out, "Error:", describe(cmdErr))
		}
		a.syncWatch(ctx)
	}
}

var errUsage = errors.New("usage")

func usage(s string) error {
	return fmt.Errorf("%w: %s", errUsage, s)
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrNotSignedIn):
		return "please log in first"
	case errors.Is(err, common.ErrUnknownCheckpoint):
		return "this QR code is not recognized in our system"
	case errors.Is(err, common.ErrEmptyContent):
		return "please enter a message"
	case errors.Is(err, common.ErrUnavailable):
		return "service unavailable, try again later (" + err.Error() + ")"
	}
	return err.Error()
}
