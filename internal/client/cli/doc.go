// Package cli provides the interactive neighborhood watch command-line client.
//
// The App mounts the session manager, then runs a REPL whose commands map
// onto the screens of the mobile app: dashboard, alerts, patrol, community,
// house, patrol statistics and reports. Commands available depend on the
// signed-in role. Security officers receive new alerts as terminal
// notifications while signed in.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
