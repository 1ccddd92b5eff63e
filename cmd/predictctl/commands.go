package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/internal/queue"
	"github.com/kiranshivaraju/dogwatch/internal/store"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
	"github.com/spf13/cobra"
)

const stampLayout = "2006-01-02 15:04:05"

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the state of one prediction job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				job, err := s.GetJob(cmd.Context(), id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("job %s not found", id)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:      %s\n", job.ID)
				fmt.Fprintf(out, "Status:  %s\n", job.Status)
				fmt.Fprintf(out, "Result:  %s\n", formatResult(job.Result))
				fmt.Fprintf(out, "Created: %s\n", job.CreatedAt.Local().Format(stampLayout))
				fmt.Fprintf(out, "Updated: %s\n", job.UpdatedAt.Local().Format(stampLayout))
				return nil
			})
		},
	}
}

func newStaleCommand(ctx *commandContext) *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List PENDING jobs older than a threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				now := time.Now()
				jobs, err := s.ListStalePending(cmd.Context(), store.StaleFilter{
					OlderThan: now.Add(-olderThan),
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No stale jobs")
					return nil
				}
				fmt.Fprintln(out, renderStaleJobs(jobs, now))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "Minimum age of a PENDING job")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of jobs to list")
	return cmd
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show work queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q queue.Queue) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Ready", "In flight"},
					[][]string{{
						strconv.FormatInt(stats.Ready, 10),
						strconv.FormatInt(stats.InFlight, 10),
					}},
					1, 2,
				))
				return nil
			})
		},
	}
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			version, dirty, err := ctx.migrate(cfg)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			state := "clean"
			if dirty {
				state = "dirty"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (%s)\n", version, state)
			return nil
		},
	}
}

func renderStaleJobs(jobs []*models.Job, now time.Time) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID.String(),
			job.CreatedAt.Local().Format(stampLayout),
			now.Sub(job.CreatedAt).Truncate(time.Second).String(),
		})
	}
	return renderTable([]string{"ID", "Created", "Age"}, rows, 3)
}

func formatResult(result *bool) string {
	if result == nil {
		return "-"
	}
	return strconv.FormatBool(*result)
}
