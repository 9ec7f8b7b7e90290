package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
	"github.com/eliteGoblin/focusd/focusguard/internal/usecase"
)

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Control focus sessions",
}

var focusStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	Long: `Sets the shared focus flags. The running monitor starts blocking the
configured sites and ends the session when the timer expires.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store domain.Store) error {
			if err := usecase.StartSession(ctx, store); err != nil {
				return err
			}
			focus, err := state.Focus(ctx, store)
			if err != nil {
				return err
			}
			fmt.Printf("Focus session started for %s\n", focus.Duration())
			return nil
		})
	},
}

var focusStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the focus session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store domain.Store) error {
			if err := usecase.StopSession(ctx, store); err != nil {
				return err
			}
			fmt.Println("Focus session stopped")
			return nil
		})
	},
}

var focusDurationCmd = &cobra.Command{
	Use:   "duration <minutes>",
	Short: "Set the focus session length",
	Long:  `Sets the session length used from the next session on.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes, err := strconv.Atoi(args[0])
		if err != nil || minutes <= 0 {
			return fmt.Errorf("duration must be a positive number of minutes")
		}
		return withStore(func(ctx context.Context, store domain.Store) error {
			if err := state.SetTimerDuration(ctx, store, minutes*60); err != nil {
				return err
			}
			fmt.Printf("Focus duration set to %d minute(s)\n", minutes)
			return nil
		})
	},
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage blocked sites",
}

var sitesAddCmd = &cobra.Command{
	Use:   "add <site>",
	Short: "Block a site during focus sessions",
	Long: `Adds a blocked-site entry. Any URL whose hostname contains the entry
is blocked, so "reddit.com" also blocks "old.reddit.com".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store domain.Store) error {
			return state.AddBlockedSite(ctx, store, args[0])
		})
	},
}

var sitesRmCmd = &cobra.Command{
	Use:   "rm <index>",
	Short: "Remove a blocked site by its list index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		return withStore(func(ctx context.Context, store domain.Store) error {
			return state.RemoveBlockedSite(ctx, store, index)
		})
	},
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked sites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store domain.Store) error {
			sites, err := state.BlockedSites(ctx, store)
			if err != nil {
				return err
			}
			if len(sites) == 0 {
				fmt.Println("No blocked sites")
				return nil
			}
			for i, s := range sites {
				fmt.Printf("%3d  %s\n", i, s)
			}
			return nil
		})
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage tasks and deadlines",
}

var taskDeadline string

var tasksAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a task",
	Long: `Adds a task. With --deadline (e.g. 2026-10-18T17:30 or RFC 3339), the
monitor reminds you every minute during the last hour before it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store domain.Store) error {
			return state.AddTask(ctx, store, args[0], taskDeadline)
		})
	},
}

var tasksRmCmd = &cobra.Command{
	Use:   "rm <index>",
	Short: "Remove a task by its list index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		return withStore(func(ctx context.Context, store domain.Store) error {
			return state.DeleteTask(ctx, store, index)
		})
	},
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store domain.Store) error {
			tasks, err := state.Tasks(ctx, store)
			if err != nil {
				return err
			}
			deadlines, err := state.Deadlines(ctx, store)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks")
				return nil
			}
			for i, t := range tasks {
				if d, ok := deadlines[strconv.Itoa(i)]; ok {
					fmt.Printf("%3d  %s  (due %s)\n", i, t, d)
				} else {
					fmt.Printf("%3d  %s\n", i, t)
				}
			}
			return nil
		})
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the URL reputation service key",
}

var keySetCmd = &cobra.Command{
	Use:   "set <api-key>",
	Short: "Store the Safe Browsing API key",
	Long:  `Without a key, reputation lookups are skipped; other checks still run.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store domain.Store) error {
			return state.SetAPIKey(ctx, store, args[0])
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show visit counts per site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store domain.Store) error {
			counts, err := state.TimeSpent(ctx, store)
			if err != nil {
				return err
			}
			hosts := make([]string, 0, len(counts))
			for h := range counts {
				hosts = append(hosts, h)
			}
			sort.Slice(hosts, func(i, j int) bool {
				if counts[hosts[i]] != counts[hosts[j]] {
					return counts[hosts[i]] > counts[hosts[j]]
				}
				return hosts[i] < hosts[j]
			})
			for _, h := range hosts {
				fmt.Printf("%6d  %s\n", counts[h], h)
			}
			return nil
		})
	},
}

func init() {
	tasksAddCmd.Flags().StringVar(&taskDeadline, "deadline", "", "Deadline, e.g. 2026-10-18T17:30")

	focusCmd.AddCommand(focusStartCmd, focusStopCmd, focusDurationCmd)
	sitesCmd.AddCommand(sitesAddCmd, sitesRmCmd, sitesListCmd)
	tasksCmd.AddCommand(tasksAddCmd, tasksRmCmd, tasksListCmd)
	keyCmd.AddCommand(keySetCmd)

	rootCmd.AddCommand(focusCmd, sitesCmd, tasksCmd, keyCmd, reportCmd)
}

// printStoredFocus prints the focus flags straight from the store.
func printStoredFocus() error {
	return withStore(func(ctx context.Context, store domain.Store) error {
		focus, err := state.Focus(ctx, store)
		if err != nil {
			return err
		}
		printFocus(focus)
		return nil
	})
}

func printFocus(f domain.FocusState) {
	duration := f.Duration()
	if f.Active {
		fmt.Printf("Focus mode: ON (session length %s)\n", duration)
	} else {
		fmt.Printf("Focus mode: off (next session %s)\n", duration)
	}
}
