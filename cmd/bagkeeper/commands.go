package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/LISSConsulting/bagkeeper/internal/config"
	"github.com/LISSConsulting/bagkeeper/internal/launch"
	"github.com/LISSConsulting/bagkeeper/internal/pool"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Record sessions back to back, evicting the oldest over the ceiling",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			max, _ := cmd.Flags().GetInt("max")
			noTUI, _ := cmd.Flags().GetBool("no-tui")
			return executeRun(path, max, noTUI)
		},
	}
	cmd.Flags().Int("max", 0, "stop after this many sessions (0 = run until interrupted)")
	cmd.Flags().Bool("no-tui", false, "print log lines instead of the terminal UI")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the current or last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			follow, _ := cmd.Flags().GetBool("follow")
			if follow {
				ctx, cancel := signalContext()
				defer cancel()
				return followJournal(ctx, path, os.Stdout)
			}
			return showStatus(path, os.Stdout)
		},
	}
	cmd.Flags().BoolP("follow", "f", false, "stream the run journal as it grows")
	return cmd
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			sessions, err := pool.Sessions(cfg.RootPath())
			if err != nil {
				return err
			}
			ceiling, err := cfg.CeilingBytes()
			if err != nil {
				return err
			}
			fmt.Print(formatSessions(sessions, ceiling))
			return nil
		},
	}
}

func pruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Evict the oldest sessions until the pool is under the ceiling",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return executePrune(path, dryRun, os.Stdout)
		},
	}
	cmd.Flags().Bool("dry-run", false, "list what would be evicted without deleting")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold bagkeeper.toml, launch.yaml and the bag directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			created, err := config.ScaffoldProject(dir)
			if err != nil {
				return err
			}
			fmt.Print(formatScaffoldResult(created))
			return nil
		},
	}
}

func launchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Inspect launch descriptors",
	}
	cmd.AddCommand(launchShowCmd())
	return cmd
}

func launchShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [file]",
		Short: "Print the processes a launch descriptor would start",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.LaunchFileName
			if len(args) == 1 {
				path = args[0]
			}
			set, _ := cmd.Flags().GetStringSlice("set")
			overrides, err := launch.ParseOverrides(set)
			if err != nil {
				return err
			}
			d, err := launch.Load(path)
			if err != nil {
				return err
			}
			procs, err := d.Resolve(overrides)
			if err != nil {
				return err
			}
			fmt.Print(formatLaunch(d, procs))
			return nil
		},
	}
	cmd.Flags().StringSlice("set", nil, "override a toggle, e.g. --set use_server_loop=false")
	return cmd
}

// formatSessions renders the session listing with a pool total.
func formatSessions(sessions []pool.Session, ceiling int64) string {
	if len(sessions) == 0 {
		return "No sessions recorded yet.\n"
	}
	var b strings.Builder
	b.WriteString("Sessions\n")
	b.WriteString("────────\n")
	var total int64
	for _, s := range sessions {
		total += s.Size
		fmt.Fprintf(&b, "  %-28s  %10s  %s\n", s.Name, units.BytesSize(float64(s.Size)), s.CreatedAt.Format(time.DateTime))
	}
	fmt.Fprintf(&b, "\n  %d sessions, %s of %s\n", len(sessions),
		units.BytesSize(float64(total)), units.BytesSize(float64(ceiling)))
	return b.String()
}

// formatScaffoldResult renders the list of paths created by init.
func formatScaffoldResult(created []string) string {
	if len(created) == 0 {
		return "All files already exist — nothing to create.\n"
	}
	var b strings.Builder
	for _, path := range created {
		fmt.Fprintf(&b, "Created %s\n", path)
	}
	return b.String()
}

// formatLaunch renders one ros2 run command line per resolved process.
func formatLaunch(d *launch.Descriptor, procs []launch.Resolved) string {
	var b strings.Builder
	ns := d.Namespace
	if ns == "" {
		ns = "(none)"
	}
	fmt.Fprintf(&b, "Launch — namespace %s, %d processes\n", ns, len(procs))
	b.WriteString("──────\n")
	for _, p := range procs {
		fmt.Fprintf(&b, "  ros2 %s\n", strings.Join(p.Args(), " "))
	}
	return b.String()
}
