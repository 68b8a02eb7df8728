package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/grayscalebench/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	cleanSamples  bool
	sampleLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage recorded benchmarks",
	Long:  `List and clean benchmark records and the timing sample log kept in the data directory.`,
}

var listHistoryCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded benchmarks",
	RunE:  runListHistory,
}

var samplesHistoryCmd = &cobra.Command{
	Use:   "samples",
	Short: "Show the most recent timing samples",
	RunE:  runListSamples,
}

var cleanHistoryCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old benchmark records",
	Long: `Delete records based on a retention policy: keep the newest N records
and/or delete records older than N days.`,
	RunE: runCleanHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(listHistoryCmd)
	historyCmd.AddCommand(samplesHistoryCmd)
	historyCmd.AddCommand(cleanHistoryCmd)

	samplesHistoryCmd.Flags().IntVar(&sampleLimit, "limit", 20, "Number of samples to show (0 = all)")

	cleanHistoryCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N records (0 = keep all)")
	cleanHistoryCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete records older than N days (0 = no age limit)")
	cleanHistoryCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
	cleanHistoryCmd.Flags().BoolVar(&cleanSamples, "samples", false, "Also delete the sample log")
}

func runListHistory(cmd *cobra.Command, args []string) error {
	records, err := openRecords()
	if err != nil {
		return err
	}

	recs, err := records.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tIMAGE\tSIZE\tDEVICE\tCPU MS\tGPU MS\tSCORE\tRANK")
	fmt.Fprintln(w, "--\t---------\t-----\t----\t------\t------\t------\t-----\t----")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%s\t%d\t%d\t%d\t%s\n",
			shortID(rec.ID),
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			filepath.Base(rec.Image),
			rec.Width, rec.Height,
			rec.Device,
			rec.CPUMillis,
			rec.GPUMillis,
			rec.Score,
			rec.Rank,
		)
	}
	w.Flush()

	size, err := getDirSize(filepath.Join(cfg.DataDir, "runs"))
	sizeStr := "unknown"
	if err == nil {
		sizeStr = formatBytes(size)
	}
	fmt.Printf("\nTotal records: %d (%s)\n", len(recs), sizeStr)
	return nil
}

func runListSamples(cmd *cobra.Command, args []string) error {
	samples, err := store.ReadSamples(cfg.DataDir)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Println("No samples found.")
		return nil
	}

	shown := samples
	if sampleLimit > 0 && len(shown) > sampleLimit {
		shown = shown[len(shown)-sampleLimit:]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tPATH\tMS\tIMAGE\tDEVICE")
	fmt.Fprintln(w, "---------\t----\t--\t-----\t------")
	for _, s := range shown {
		device := s.Device
		if device == "" {
			device = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.Timestamp.Format("2006-01-02 15:04:05"), s.Path, s.Millis, filepath.Base(s.Image), device)
	}
	w.Flush()

	fmt.Printf("\nShowing %d of %d samples\n", len(shown), len(samples))
	return nil
}

func runCleanHistory(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 && !cleanSamples {
		return fmt.Errorf("must specify --keep-last, --older-than or --samples")
	}

	records, err := openRecords()
	if err != nil {
		return err
	}

	recs, err := records.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	toDelete := selectRecordsForDeletion(recs, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 && !cleanSamples {
		fmt.Println("No records match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d record(s) to delete:\n", len(toDelete))
	for _, rec := range toDelete {
		fmt.Printf("  - %s (%s, score %d)\n", shortID(rec.ID), rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Score)
	}
	if cleanSamples {
		fmt.Println("  - sample log")
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, rec := range toDelete {
		if err := records.DeleteRecord(rec.ID); err != nil {
			slog.Error("Failed to delete record", "id", rec.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted record", "id", rec.ID)
			deleted++
		}
	}
	if cleanSamples {
		if err := store.DeleteSamples(cfg.DataDir); err != nil {
			slog.Error("Failed to delete sample log", "error", err)
			failed++
		}
	}

	fmt.Printf("\nDeleted %d record(s), %d failed.\n", deleted, failed)
	return nil
}

func openRecords() (*store.FSStore, error) {
	records, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create record store: %w", err)
	}
	return records, nil
}

// selectRecordsForDeletion applies the retention policy: records older than
// olderThanDays, plus everything but the newest keepLast.
func selectRecordsForDeletion(recs []store.Record, keepLast, olderThanDays int, now time.Time) []store.Record {
	selected := make(map[string]bool)
	var toDelete []store.Record

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, rec := range recs {
			if rec.Timestamp.Before(cutoff) {
				selected[rec.ID] = true
				toDelete = append(toDelete, rec)
			}
		}
	}

	if keepLast > 0 && len(recs) > keepLast {
		sorted := make([]store.Record, len(recs))
		copy(sorted, recs)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, rec := range sorted[:len(sorted)-keepLast] {
			if !selected[rec.ID] {
				selected[rec.ID] = true
				toDelete = append(toDelete, rec)
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
