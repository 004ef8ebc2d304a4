package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fgp-bot/fgpbot/internal/config"
	"github.com/fgp-bot/fgpbot/pkg/filemanager"
	"github.com/fgp-bot/fgpbot/pkg/models"
	"github.com/fgp-bot/fgpbot/pkg/store"
)

var (
	syncWatch      bool
	syncDebounce   time.Duration
	listCategory   string
	unsentGuild    string
	unsentCategory string
)

// filesCmd represents the files command
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage the tracked media files",
	Long:  `Commands for synchronising the media directories with the tracking database and inspecting what has been sent where.`,
}

var filesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Add new files from the media directories to the database",
	Long: `Sync walks the memes and private directories, hashes every file not yet
tracked and records it. Files with content already tracked are reported as
duplicates and skipped.

With --watch the command keeps running and syncs again shortly after
anything in the directories changes.

Example:
  fgpbot files sync
  fgpbot files sync --watch --debounce 5s --metrics-addr :9100`,
	RunE: runFilesSync,
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked files",
	RunE:  runFilesList,
}

var filesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show file counts and sizes per category",
	RunE:  runFilesStats,
}

var filesShowCmd = &cobra.Command{
	Use:   "show <hash>",
	Short: "Show one tracked file and its per-guild usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesShow,
}

var filesUnsentCmd = &cobra.Command{
	Use:   "unsent",
	Short: "List files never sent to a guild",
	RunE:  runFilesUnsent,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesSyncCmd, filesListCmd, filesStatsCmd, filesShowCmd, filesUnsentCmd)

	filesSyncCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep watching the directories and sync on change")
	filesSyncCmd.Flags().DurationVar(&syncDebounce, "debounce", filemanager.DefaultDebounce, "quiet period before a watched change triggers a sync")
	filesListCmd.Flags().StringVar(&listCategory, "category", "", "only list this category (meme or private)")
	filesUnsentCmd.Flags().StringVar(&unsentGuild, "guild", "", "guild ID")
	filesUnsentCmd.Flags().StringVar(&unsentCategory, "category", models.DefaultCategory, "category to check")
	filesUnsentCmd.MarkFlagRequired("guild")
}

func runFilesSync(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	m, err := startMetrics()
	if err != nil {
		return err
	}
	mgr := newFileManager(st, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := mgr.Sync(ctx)
	if err != nil {
		return err
	}
	if err := printSyncReport(report); err != nil {
		return err
	}
	if !syncWatch {
		return nil
	}

	fmt.Println("Watching for changes. Press Ctrl+C to stop.")
	return mgr.Watch(ctx, syncDebounce, func(r *filemanager.SyncReport, err error) {
		if err != nil {
			appLogger().Error("Sync failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if r.Inserted > 0 || len(r.Duplicates) > 0 {
			printSyncReport(r)
		}
	})
}

func printSyncReport(r *filemanager.SyncReport) error {
	if IsJSONOutput() {
		return printJSON(r)
	}
	fmt.Printf("Scanned %d new paths: %d inserted, %d already tracked, %d duplicate groups (%s)\n",
		r.Scanned, r.Inserted, r.Existing, len(r.Duplicates), r.Duration.Round(time.Millisecond))
	for _, category := range r.Skipped {
		fmt.Printf("  %s: unchanged, skipped\n", category)
	}
	hashes := make([]string, 0, len(r.Duplicates))
	for h := range r.Duplicates {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	for _, h := range hashes {
		fmt.Printf("  duplicate %s:\n", h[:12])
		for _, p := range r.Duplicates[h] {
			fmt.Printf("    %s\n", p)
		}
	}
	return nil
}

func runFilesList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	recs, err := st.GetFilesOfCategory(listCategory)
	if err != nil {
		return err
	}
	return printRecords(recs)
}

func printRecords(recs []*models.FileRecord) error {
	if IsJSONOutput() {
		return printJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No files tracked")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Hash", "Category", "Size", "Converted", "Sends", "Path")
	for _, rec := range recs {
		converted := "-"
		if rec.HasConversion() {
			converted = models.HumanReadableSize(*rec.ConvertedSize)
		}
		table.Append(
			rec.FileHash[:12],
			rec.Category,
			models.HumanReadableSize(rec.FileSize),
			converted,
			rec.TotalSends(),
			rec.FilePath,
		)
	}
	table.Render()
	fmt.Printf("\nTotal files: %d\n", len(recs))
	return nil
}

type categoryStats struct {
	Category  string `json:"category"`
	Files     int    `json:"files"`
	OnDisk    int    `json:"on_disk"`
	Bytes     int64  `json:"bytes"`
	Oversized int    `json:"oversized"`
	Converted int    `json:"converted"`
	Sends     int    `json:"sends"`
}

func runFilesStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	var stats []categoryStats
	for _, cd := range settings.CategoryDirs() {
		s, err := statsFor(st, cd)
		if err != nil {
			return err
		}
		stats = append(stats, s)
	}

	if IsJSONOutput() {
		return printJSON(stats)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Category", "Tracked", "On disk", "Size", "Oversized", "Converted", "Sends")
	for _, s := range stats {
		table.Append(s.Category, s.Files, s.OnDisk, models.HumanReadableSize(s.Bytes), s.Oversized, s.Converted, s.Sends)
	}
	return table.Render()
}

func statsFor(st store.Store, cd config.CategoryDir) (categoryStats, error) {
	s := categoryStats{Category: cd.Category}
	recs, err := st.GetFilesOfCategory(cd.Category)
	if err != nil {
		return s, err
	}
	s.Files = len(recs)
	for _, rec := range recs {
		s.Bytes += rec.FileSize
		s.Sends += rec.TotalSends()
		if !rec.WithinSizeLimit(settings.Bot.MaxFileSize) {
			s.Oversized++
		}
		if rec.HasConversion() {
			s.Converted++
		}
	}
	s.OnDisk, err = filemanager.CountFiles(cd.Dir, appLogger())
	return s, err
}

func runFilesShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	rec, err := st.GetFileRecordByHash(args[0])
	if errors.Is(err, store.ErrFileNotFound) {
		return fmt.Errorf("no file with hash %s", args[0])
	}
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(rec)
	}
	fmt.Printf("Hash:      %s\n", rec.FileHash)
	fmt.Printf("Path:      %s\n", rec.FilePath)
	fmt.Printf("Category:  %s\n", rec.Category)
	fmt.Printf("Size:      %s\n", models.HumanReadableSize(rec.FileSize))
	fmt.Printf("Added:     %s\n", rec.CreatedAt.Format(time.RFC3339))
	if rec.HasConversion() {
		fmt.Printf("Converted: %s (%s)\n", *rec.ConvertedPath, models.HumanReadableSize(*rec.ConvertedSize))
	}
	if path, ok := rec.SendPath(settings.Bot.MaxFileSize); ok {
		fmt.Printf("Sendable:  yes, as %s\n", path)
	} else {
		fmt.Println("Sendable:  no, over the upload limit")
	}

	if len(rec.GuildUsage) == 0 {
		fmt.Println("\nNever sent")
		return nil
	}
	guilds := make([]string, 0, len(rec.GuildUsage))
	for g := range rec.GuildUsage {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds)

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Guild", "Sends", "Last sent")
	for _, g := range guilds {
		u := rec.GuildUsage[g]
		last := "-"
		if u.LastSent != nil {
			last = u.LastSent.Format(time.RFC3339)
		}
		table.Append(g, u.SendCount, last)
	}
	return table.Render()
}

func runFilesUnsent(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	recs, err := st.GetUnsentFiles(unsentGuild, unsentCategory)
	if err != nil {
		return err
	}
	return printRecords(recs)
}
