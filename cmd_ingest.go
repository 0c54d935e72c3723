package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/turnstile-dp/censusd/ledger"
	"github.com/turnstile-dp/censusd/pipeline"
)

// ingestRow is one line of a DATA_DIR/streams/*.jsonl event file.
type ingestRow struct {
	UserID   string            `json:"user_id"`
	Op       string            `json:"op"`
	Day      string            `json:"day"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func ingestCmd() *cobra.Command {
	var path string
	var batchSize int
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a JSONL stream of activity/erasure events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			var total int
			batch := make([]pipeline.Event, 0, batchSize)
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				n, err := a.pipe.IngestSync(cmd.Context(), batch)
				if err != nil {
					return err
				}
				total += n
				batch = batch[:0]
				return nil
			}

			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			lineNo := 0
			for scanner.Scan() {
				lineNo++
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var row ingestRow
				if err := json.Unmarshal(line, &row); err != nil {
					return fmt.Errorf("line %d: %w", lineNo, err)
				}
				day, err := time.Parse(dayLayout, row.Day)
				if err != nil {
					return fmt.Errorf("line %d: day: %w", lineNo, err)
				}
				batch = append(batch, pipeline.Event{
					UserID:   row.UserID,
					Day:      day,
					Op:       ledger.Op(row.Op),
					Metadata: row.Metadata,
				})
				if len(batch) >= batchSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			if err := flush(); err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "ingested %d event(s) from %s\n", total, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "path to a JSONL event stream")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "events per ledger transaction")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
