package main

import (
	"fmt"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/pkg/httputil"
	"github.com/bissquit/clerk-queue/internal/queue"
	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var court string

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect a court's clerk queue",
	}
	queueCmd.PersistentFlags().StringVar(&court, "court", "", "Court district id (required)")
	_ = queueCmd.MarkPersistentFlagRequired("court")

	courtID := func() (string, error) {
		id := httputil.SanitizeCourtID(court)
		if id == "" {
			return "", fmt.Errorf("invalid court id %q", court)
		}
		return id, nil
	}

	queueCmd.AddCommand(newQueueListCommand(ctx, courtID))
	queueCmd.AddCommand(newQueueStatsCommand(ctx, courtID))
	queueCmd.AddCommand(newQueueShowCommand(ctx, courtID))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext, courtID func() (string, error)) *cobra.Command {
	var (
		status    string
		queueType string
		assignee  int64
		limit     int
		offset    int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items, most urgent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			court, err := courtID()
			if err != nil {
				return err
			}

			filter := queue.Filter{Offset: offset, Limit: limit}
			if status != "" {
				s := domain.QueueStatus(status)
				filter.Status = &s
			}
			if queueType != "" {
				qt := domain.QueueType(queueType)
				filter.QueueType = &qt
			}
			if cmd.Flags().Changed("assigned-to") {
				filter.AssignedTo = &assignee
			}

			return ctx.withService(cmd.Context(), func(service *queue.Service) error {
				result, err := service.Search(cmd.Context(), court, filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				if len(result.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Pri", "Type", "Status", "Step", "Assignee", "Title", "Age"},
					buildQueueListRows(result.Items, nowFunc()),
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				))
				fmt.Fprintf(cmd.OutOrStdout(), "Showing %d-%d of %d\n",
					result.Offset+1, result.Offset+len(result.Items), result.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&queueType, "type", "", "Filter by queue type")
	cmd.Flags().Int64Var(&assignee, "assigned-to", 0, "Filter by assigned clerk id")
	cmd.Flags().IntVar(&limit, "limit", queue.DefaultLimit, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func newQueueStatsCommand(ctx *commandContext, courtID func() (string, error)) *cobra.Command {
	var (
		user   int64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			court, err := courtID()
			if err != nil {
				return err
			}

			var userID *int64
			if cmd.Flags().Changed("user") {
				userID = &user
			}

			return ctx.withService(cmd.Context(), func(service *queue.Service) error {
				stats, err := service.Stats(cmd.Context(), court, userID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Counter", "Value"},
					buildStatsRows(stats, userID != nil),
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&user, "user", 0, "Clerk id for the assigned-to-me counter")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func newQueueShowCommand(ctx *commandContext, courtID func() (string, error)) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			court, err := courtID()
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(service *queue.Service) error {
				item, err := service.Get(cmd.Context(), court, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, item)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Field", "Value"},
					buildItemRows(item),
					[]columnAlignment{alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}
