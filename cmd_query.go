package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const dayLayout = "2006-01-02"

func dauCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "dau",
		Short: "Release a DAU estimate for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			d, err := time.Parse(dayLayout, day)
			if err != nil {
				return fmt.Errorf("--day: %w", err)
			}
			rel, err := a.pipe.ReleaseDAU(cmd.Context(), d)
			if err != nil {
				return err
			}
			return printJSON(rel)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to release, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("day")
	return cmd
}

func mauCmd() *cobra.Command {
	var end string
	var window int
	cmd := &cobra.Command{
		Use:   "mau",
		Short: "Release an MAU estimate for the window ending on a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			d, err := time.Parse(dayLayout, end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			rel, err := a.pipe.ReleaseMAU(cmd.Context(), d, window)
			if err != nil {
				return err
			}
			return printJSON(rel)
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "last day of the window, YYYY-MM-DD")
	cmd.Flags().IntVar(&window, "window", 0, "window length in days (0 = configured default)")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func flushDeletesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-deletes",
		Short: "Replay pending deletion tombstones into day sketches",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.pipe.ReplayDeletions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "replayed %d deletion(s)\n", n)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
