// Package logging builds the structured logger shared by the server and the CLI.
package logging

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// New returns a logger writing one line per entry to w. format is "text" or
// "json". Entries with a V-level above verbosity are dropped.
func New(w io.Writer, format string, verbosity int) (logr.Logger, error) {
	opts := funcr.Options{
		LogTimestamp: true,
		Verbosity:    verbosity,
	}
	write := func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(w, args)
	}

	switch format {
	case "", "text":
		return funcr.New(write, opts), nil
	case "json":
		return funcr.NewJSON(func(obj string) { fmt.Fprintln(w, obj) }, opts), nil
	default:
		return logr.Discard(), fmt.Errorf("unknown log format %q", format)
	}
}
