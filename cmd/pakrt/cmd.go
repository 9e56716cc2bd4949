package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/tonidy/pak-rt/internal/netmgr"
	"github.com/tonidy/pak-rt/internal/orchestrator"
	"github.com/tonidy/pak-rt/internal/pathstore"
	"github.com/tonidy/pak-rt/internal/rterr"
	"github.com/tonidy/pak-rt/internal/rtlog"
)

// version is stamped at release time; left as a plain default here
// since this runtime has no build-time ldflags wiring.
var version = "dev"

var (
	stateRoot string
	verbose   bool
	busybox   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pakrt",
		Short:         "a minimal namespace/cgroup container runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				rtlog.SetVerbose()
			}
		},
	}
	root.PersistentFlags().StringVar(&stateRoot, "state-root", pathstore.DefaultRoot, "root directory for container state")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&busybox, "busybox", "", "path to the busybox binary (default: look up on PATH)")

	root.AddCommand(newCreateCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newCleanupAllCmd())
	root.AddCommand(newRecoverStateCmd())
	root.AddCommand(newShowNetworkCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(stateRoot, busybox)
}

func runWithErrorHandling(cmd *cobra.Command, fn func() error) error {
	err := fn()
	if err != nil {
		logError(err)
		return err
	}
	return nil
}

func newCreateCmd() *cobra.Command {
	var ram, cpu, uid, gid int
	var hostname string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "create and start a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithErrorHandling(cmd, func() error {
				o := newOrchestrator()
				c, err := o.Create(orchestrator.CreateRequest{
					Name:       args[0],
					MemoryMB:   ram,
					CPUPercent: cpu,
					Hostname:   hostname,
					HostUID:    uid,
					HostGID:    gid,
				})
				if err != nil {
					return err
				}
				fmt.Printf("created %s (ip=%s pid=%d)\n", c.Name, c.IPAddress, derefPID(c.InitPID))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&ram, "ram", 256, "memory limit in MB")
	cmd.Flags().IntVar(&cpu, "cpu", 50, "CPU share percentage")
	cmd.Flags().StringVar(&hostname, "hostname", "", "container hostname (default: name)")
	cmd.Flags().IntVar(&uid, "uid", os.Getuid(), "host UID mapped to container root")
	cmd.Flags().IntVar(&gid, "gid", os.Getgid(), "host GID mapped to container root")
	return cmd
}

func derefPID(pid *int) int {
	if pid == nil {
		return 0
	}
	return *pid
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list known containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithErrorHandling(cmd, func() error {
				o := newOrchestrator()
				containers, err := o.List()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tSTATE\tIP\tMEMORY\tCPU\tPID")
				for _, c := range containers {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%d\n",
						c.Name, c.State, c.IPAddress, units.BytesSize(float64(c.MemoryMB)*1024*1024), c.CPUPercent, derefPID(c.InitPID))
				}
				return w.Flush()
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "stop and remove a container (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithErrorHandling(cmd, func() error {
				return newOrchestrator().Delete(args[0])
			})
		},
	}
}

func newCleanupAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-all",
		Short: "delete every known container and sweep orphaned resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithErrorHandling(cmd, func() error {
				return newOrchestrator().CleanupAll()
			})
		},
	}
}

func newRecoverStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover-state",
		Short: "reclassify every container and clean up orphans, leaving healthy ones running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithErrorHandling(cmd, func() error {
				return newOrchestrator().RecoverState()
			})
		},
	}
}

func newShowNetworkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-network <name>",
		Short: "print a container's network configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithErrorHandling(cmd, func() error {
				o := newOrchestrator()
				containers, err := o.List()
				if err != nil {
					return err
				}
				for _, c := range containers {
					if c.Name == args[0] {
						fmt.Printf("ip=%s gateway=%s veth_host=%s veth_peer=%s netns=%s\n",
							c.IPAddress, netmgr.GatewayIP, c.VethHost, c.VethPeer, c.Netns())
						return nil
					}
				}
				return rterr.New(rterr.NotFound, "no such container: "+args[0])
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the runtime version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
