package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler and check workers",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, appInstance App) error {
			if err := appInstance.Run(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		}),
	}
}

func newCheckCmd() *cobra.Command {
	var req watch.CheckRequest
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one check for a monitor and print the outcome",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, appInstance App) error {
			outcome := appInstance.Check(cmd.Context(), req)
			if err := printJSON(cmd, outcome); err != nil {
				return err
			}
			if outcome.Status != watch.StatusChecked {
				return fmt.Errorf("check finished with status %s", outcome.Status)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&req.MonitorID, "monitor-id", "", "monitor to check")
	cmd.Flags().StringVar(&req.URL, "url", "", "override the monitor URL for this run")
	cmd.Flags().StringVar(&req.Description, "description", "", "override the value description for this run")
	cmd.Flags().StringVar(&req.Condition, "condition", "", "override the condition for this run")
	_ = cmd.MarkFlagRequired("monitor-id")
	return cmd
}

func newCreateCmd() *cobra.Command {
	var rawURL string
	cmd := &cobra.Command{
		Use:   `create "<request>"`,
		Short: "Create a monitor from a natural-language request",
		Example: `  pagewatch create "tell me every 3 hours when the price drops below $100" \
    --url https://shop.example/item`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, appInstance App) error {
			m, created, err := appInstance.CreateMonitor(cmd.Context(), args[0], rawURL)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"monitor": m, "created": created})
		}),
	}
	cmd.Flags().StringVar(&rawURL, "url", "", "page to watch when the request text has no URL")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
