package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"relpack/internal/history"
	"relpack/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	historyDB      string
	historyProject string
	historyLimit   int
	historyJSON    bool
	historyLatest  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded publish results",
	Long: `Show recent publish results recorded with 'relpack publish --history'.

Results are listed newest first, one line per archive or bundle step.
With --latest only the most recent result of each project is shown.`,
	Example: `  relpack history --db ./publish.db
  relpack history --db ./publish.db --latest
  relpack history --db ./publish.db --project Uchu.Tool --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", getEnvOrDefault("RELPACK_HISTORY_DB", "./publish.db"), "Path to SQLite history database")
	historyCmd.Flags().StringVarP(&historyProject, "project", "p", "", "Only show results for this project")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", getEnvOrDefaultInt("RELPACK_HISTORY_LIMIT", 20), "Maximum number of results")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print results as JSON")
	historyCmd.Flags().BoolVar(&historyLatest, "latest", false, "Only show the latest result per project")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !fileutil.FileExists(historyDB) {
		return fmt.Errorf("history database %s does not exist", historyDB)
	}
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", historyLimit)
	}

	hist, err := history.NewHistory(historyDB)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if historyLatest {
		records, err := latestRecords(ctx, hist, historyProject)
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(out, records)
		}
		return writeRecords(out, records)
	}

	if historyProject != "" {
		status, err := hist.GetProjectStatus(ctx, historyProject, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(out, status)
		}
		return writeRecords(out, status.RecentHistory)
	}

	records, err := hist.GetRecentPublishes(ctx, historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		if records == nil {
			records = []history.PublishRecord{}
		}
		return writeJSON(out, records)
	}
	return writeRecords(out, records)
}

// latestRecords returns the newest record of one project, or of every
// project ordered by name when project is empty.
func latestRecords(ctx context.Context, hist *history.History, project string) ([]history.PublishRecord, error) {
	records := []history.PublishRecord{}

	if project != "" {
		latest, err := hist.GetLatestPublish(ctx, project)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			records = append(records, *latest)
		}
		return records, nil
	}

	status, err := hist.GetAllProjectsStatus(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		records = append(records, *status[name])
	}
	return records, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRecords(w io.Writer, records []history.PublishRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No publish results recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPROJECT\tPLATFORM\tKIND\tSTATUS\tVERSION\tDURATION\tDETAIL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Project,
			r.Platform,
			r.Kind,
			r.Status,
			deref(r.Version, "-"),
			formatSeconds(r.DurationSeconds),
			detail(r),
		)
	}
	return tw.Flush()
}

func detail(r history.PublishRecord) string {
	if r.ErrorMessage != nil {
		return *r.ErrorMessage
	}
	return deref(r.Archive, "")
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func formatSeconds(s *float64) string {
	if s == nil {
		return "-"
	}
	return (time.Duration(*s * float64(time.Second))).Round(time.Millisecond).String()
}
