package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/service/auth"
	"github.com/spf13/cobra"
)

// env is what every command operates on.
type env struct {
	queue *queue.Service
	jwt   auth.JWTService
	close func() error
}

// newRootCmd wires the command tree. load runs once, before the first
// command that needs it.
func newRootCmd(load func() (*env, error)) *cobra.Command {
	var e *env

	root := &cobra.Command{
		Use:           "kbasectl",
		Short:         "Operate kbase job queues",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			e, err = load()
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e != nil && e.close != nil {
				return e.close()
			}
			return nil
		},
	}

	get := func() *env { return e }
	enqueue := &cobra.Command{Use: "enqueue", Short: "Submit a job"}
	enqueue.AddCommand(enqueueScrapeCmd(get))

	root.AddCommand(
		statusCmd(get),
		statsCmd(get),
		enqueue,
		reapCmd(get),
		tokenCmd(get),
	)
	return root
}

func statusCmd(get func() *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <queue> <job-id>",
		Short: "Show a job's state, progress and outcome",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := queue.ParseName(args[0])
			if err != nil {
				return err
			}
			snap, err := get().queue.GetJob(cmd.Context(), name, args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}

func statsCmd(get func() *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [queue]",
		Short: "Count jobs per state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := queue.Names()
			if len(args) == 1 {
				name, err := queue.ParseName(args[0])
				if err != nil {
					return err
				}
				names = []queue.Name{name}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tWAITING\tACTIVE\tDELAYED\tCOMPLETED\tFAILED")
			for _, name := range names {
				c, err := get().queue.Stats(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", name, c.Waiting, c.Active, c.Delayed, c.Completed, c.Failed)
			}
			return tw.Flush()
		},
	}
}

func enqueueScrapeCmd(get func() *env) *cobra.Command {
	var (
		customerID string
		urlID      string
		rawURL     string
		priority   int
		delay      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Queue a page for scraping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(customerID); err != nil {
				return fmt.Errorf("invalid --customer: %w", err)
			}
			if urlID == "" {
				urlID = uuid.NewString()
			}
			q := get().queue
			if !cmd.Flags().Changed("priority") {
				pol, err := q.Policy(queue.WebScraping)
				if err != nil {
					return err
				}
				priority = pol.DefaultPriority
			}
			id, err := q.Enqueue(cmd.Context(), queue.WebScraping, queue.ScrapePayload{
				ContentID:  urlID,
				CustomerID: customerID,
				URL:        rawURL,
			}, priority, queue.EnqueueOptions{Delay: delay})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&customerID, "customer", "", "customer id (required)")
	cmd.Flags().StringVar(&urlID, "url-id", "", "scraped content id (default: new uuid)")
	cmd.Flags().StringVar(&rawURL, "url", "", "page to fetch (required)")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority, lower runs first (default: queue default)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "hold the job back for this long")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func reapCmd(get func() *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reap <queue>",
		Short: "Return jobs with expired leases to the queue or fail them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := queue.ParseName(args[0])
			if err != nil {
				return err
			}
			reaped, err := get().queue.ReapExpired(cmd.Context(), name)
			if err != nil {
				return err
			}
			return printReaped(cmd.OutOrStdout(), reaped)
		},
	}
}

func printReaped(w io.Writer, reaped []queue.Reaped) error {
	if len(reaped) == 0 {
		_, err := fmt.Fprintln(w, "no expired leases")
		return err
	}
	for _, r := range reaped {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", r.JobID, r.State); err != nil {
			return err
		}
	}
	return nil
}

func tokenCmd(get func() *env) *cobra.Command {
	var lifetime time.Duration
	cmd := &cobra.Command{
		Use:   "token <customer-id>",
		Short: "Mint an access token for a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid customer id: %w", err)
			}
			if lifetime <= 0 {
				return errors.New("--lifetime must be positive")
			}
			token, err := get().jwt.GenerateTokenWithLifetime(cmd.Context(), customerID, lifetime)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&lifetime, "lifetime", time.Hour, "token lifetime")
	return cmd
}
