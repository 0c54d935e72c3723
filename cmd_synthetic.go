package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// generateSyntheticCmd fabricates a population of synthetic users and
// writes their daily activity as a JSONL stream under
// DATA_DIR/streams/, for local load-testing and demoing release
// behavior without a real event source. Not part of the production
// ingest surface.
func generateSyntheticCmd() *cobra.Command {
	var users int
	var days int
	var churnRate float64
	var startDay string
	var outName string

	cmd := &cobra.Command{
		Use:   "generate-synthetic",
		Short: "Generate a synthetic JSONL activity stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			start := time.Now().UTC().AddDate(0, 0, -days)
			if startDay != "" {
				start, err = time.Parse(dayLayout, startDay)
				if err != nil {
					return fmt.Errorf("--start-day: %w", err)
				}
			}

			seed := time.Now().UnixNano()
			if a.cfg.DefaultSeed != nil {
				seed = *a.cfg.DefaultSeed
			}
			rng := rand.New(rand.NewSource(seed))

			streamDir := filepath.Join(a.cfg.DataDir, "streams")
			if err := os.MkdirAll(streamDir, 0o755); err != nil {
				return err
			}
			if outName == "" {
				outName = fmt.Sprintf("synthetic-%s.jsonl", start.Format("20060102"))
			}
			outPath := filepath.Join(streamDir, outName)

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			enc := json.NewEncoder(f)

			active := make(map[int]bool, users)
			for i := 0; i < users; i++ {
				active[i] = rng.Float64() > churnRate
			}

			var written int
			for d := 0; d < days; d++ {
				day := start.AddDate(0, 0, d).Format(dayLayout)
				for u := 0; u < users; u++ {
					if !active[u] {
						// churned users occasionally return.
						if rng.Float64() < churnRate*0.1 {
							active[u] = true
						} else {
							continue
						}
					}
					if rng.Float64() < churnRate {
						active[u] = false
					}
					row := ingestRow{UserID: fmt.Sprintf("synthetic-user-%06d", u), Op: "+", Day: day}
					if err := enc.Encode(row); err != nil {
						return err
					}
					written++
				}
			}

			fmt.Fprintf(os.Stdout, "wrote %d event(s) for %d user(s) over %d day(s) to %s\n", written, users, days, outPath)
			return nil
		},
	}

	cmd.Flags().IntVar(&users, "users", 1000, "number of synthetic users")
	cmd.Flags().IntVar(&days, "days", 30, "number of days to simulate")
	cmd.Flags().Float64Var(&churnRate, "churn-rate", 0.05, "per-day probability an active user goes inactive (and vice versa, scaled)")
	cmd.Flags().StringVar(&startDay, "start-day", "", "first simulated day, YYYY-MM-DD (default: today minus --days)")
	cmd.Flags().StringVar(&outName, "out", "", "output file name under DATA_DIR/streams (default: derived from start day)")
	return cmd
}
