package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func resetBudgetCmd() *cobra.Command {
	var metric, asOf string
	cmd := &cobra.Command{
		Use:   "reset-budget",
		Short: "Zero a metric's current-month privacy budget (operator override)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			d := time.Now().UTC()
			if asOf != "" {
				d, err = time.Parse(dayLayout, asOf)
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
			}
			if err := a.pipe.ResetBudget(cmd.Context(), metric, d); err != nil {
				return err
			}
			fmt.Printf("budget reset: metric=%s month=%s\n", metric, d.Format("2006-01"))
			return nil
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "DAU or MAU")
	cmd.Flags().StringVar(&asOf, "as-of", "", "month to reset, YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}

func rotateSaltCmd() *cobra.Command {
	var effective string
	var rotationDays int
	var windowEnd string
	cmd := &cobra.Command{
		Use:   "rotate-salt",
		Short: "Rotate the HMAC pseudonymization salt, effective on a future day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			eff, err := time.Parse(dayLayout, effective)
			if err != nil {
				return fmt.Errorf("--effective: %w", err)
			}
			we := time.Now().UTC()
			if windowEnd != "" {
				we, err = time.Parse(dayLayout, windowEnd)
				if err != nil {
					return fmt.Errorf("--window-end: %w", err)
				}
			}
			days := rotationDays
			if days <= 0 {
				days = a.cfg.HashSaltRotationDays
			}
			epoch, err := a.pipe.RotateSalt(cmd.Context(), eff, days, we)
			if err != nil {
				return err
			}
			fmt.Printf("salt rotated: epoch_id=%s effective_date=%s\n", epoch.ID, epoch.EffectiveDate.Format(dayLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&effective, "effective", "", "effective date of the new epoch, YYYY-MM-DD")
	cmd.Flags().IntVar(&rotationDays, "rotation-days", 0, "rotation period for the new epoch (0 = configured default)")
	cmd.Flags().StringVar(&windowEnd, "window-end", "", "end of the active MAU window, YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("effective")
	return cmd
}
