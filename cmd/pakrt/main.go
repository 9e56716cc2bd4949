// Command pakrt is the CLI front-end for the container runtime,
// wired with cobra. When re-exec'd with the hidden
// supervisor.MarkerArg, it skips the CLI entirely and runs the
// container init child-setup path instead.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/tonidy/pak-rt/internal/rterr"
	"github.com/tonidy/pak-rt/internal/rtlog"
	"github.com/tonidy/pak-rt/internal/supervisor"
)

func main() {
	if supervisor.IsChildEntry(os.Args) {
		if err := supervisor.ChildEntry(os.Args); err != nil {
			fmt.Fprintln(os.Stderr, "container init failed:", err)
			os.Exit(1)
		}
		return
	}

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch rterr.KindOf(err) {
	case rterr.InvalidArgument:
		return 2
	case rterr.PermissionDenied:
		return 3
	case rterr.KernelFacilityUnavailable:
		return 4
	default:
		return 1
	}
}

func logError(err error) {
	entry := rtlog.For("cli")
	if os.Getenv("RT_DEBUG") == "1" {
		entry.WithError(err).WithField("kind", rterr.KindOf(err)).Error("command failed")
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{})
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", rterr.KindOf(err), err)
}
