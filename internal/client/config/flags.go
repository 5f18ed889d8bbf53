package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/flagx"
)

var processArgs = func() []string { return os.Args[1:] }

// parseFlags populates selected Config fields from command-line flags.
//
//	-u string   backend base URL
//	-k string   backend public API key
//	-t int      auth check timeout (milliseconds)
//	-d string   session database path
//
// Only these flags are considered; everything else in args is ignored.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-u", "-k", "-t", "-d"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BackendURL, "u", cfg.BackendURL, "backend base URL")
	fs.StringVar(&cfg.BackendKey, "k", cfg.BackendKey, "backend public API key")
	fs.StringVar(&cfg.SessionDBPath, "d", cfg.SessionDBPath, "session database path")
	timeoutMs := fs.Int("t", int(cfg.AuthTimeout.Milliseconds()), "auth check timeout (ms)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.AuthTimeout = time.Duration(*timeoutMs) * time.Millisecond
}
