package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"notify-mail-relay-go/internal/model"
	"notify-mail-relay-go/internal/store"
)

// NewRootCommand builds the notify-mail-relay command tree
func NewRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "notify-mail-relay",
		Short:         "Notify Mail Relay",
		Long:          "Forwards device notifications to a mailbox over SMTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml or ./config/config.yaml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(configFile)
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the forward history",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent forward records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(configFile, func(h *store.HistoryStore) error {
				printRecords(cmd.OutOrStdout(), h.Recent(limit), time.Now())
				return nil
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all forward records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(configFile, func(h *store.HistoryStore) error {
				n := h.Len()
				if err := h.ClearHistory(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d record(s)\n", n)
				return nil
			})
		},
	}

	history.AddCommand(listCmd, clearCmd)
	root.AddCommand(serve, history)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

func withHistory(configFile string, fn func(h *store.HistoryStore) error) error {
	cfg, err := load(configFile)
	if err != nil {
		return err
	}
	container, err := BuildContainer(context.Background(), cfg)
	if err != nil {
		return err
	}
	return invokeHistory(container, fn)
}

func invokeHistory(container *dig.Container, fn func(h *store.HistoryStore) error) error {
	var runErr error
	if err := container.Invoke(func(h *store.HistoryStore) {
		runErr = fn(h)
	}); err != nil {
		return err
	}
	return runErr
}

var statusColors = map[model.Status]*color.Color{
	model.StatusSuccess: color.New(color.FgGreen),
	model.StatusFailed:  color.New(color.FgRed),
	model.StatusPending: color.New(color.FgYellow),
}

func printRecords(out io.Writer, records []model.ForwardRecord, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No forward records")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tAPP\tPREVIEW\tERROR")
	for _, r := range records {
		status := string(r.Status)
		if c, ok := statusColors[r.Status]; ok {
			status = c.Sprint(status)
		}
		app := r.DisplayName
		if app == "" {
			app = r.SourceApp
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.DisplayTime(now), status, app, r.ContentPreview(), r.ErrorText())
	}
	w.Flush()
}
