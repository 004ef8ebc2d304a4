package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fgp-bot/fgpbot/pkg/mediaapi"
	"github.com/fgp-bot/fgpbot/pkg/models"
)

var (
	postsLimit   int
	postsPage    string
	postsRating  string
	postsType    string
	postsOrder   string
	postsDate    string
	tagsCategory string
	tagsOrder    string
	tagsLimit    int
	downloadOut  string
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Query the media API",
	Long: `Commands for searching posts and tags on the media API and downloading
files. Credentials come from MEDIA_USERNAME, MEDIA_API_KEY and
MEDIA_USER_AGENT; requests are rate limited and spread over a small pool
of workers.`,
}

var mediaPostsCmd = &cobra.Command{
	Use:   "posts [tags...]",
	Short: "Search posts",
	Example: `  fgpbot media posts fox --rating s --type png --limit 5
  fgpbot media posts --order score --date week`,
	RunE: runMediaPosts,
}

var mediaTagsCmd = &cobra.Command{
	Use:   "tags [pattern]",
	Short: "Search tags, most used first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMediaTags,
}

var mediaDownloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runMediaDownload,
}

func init() {
	rootCmd.AddCommand(mediaCmd)
	mediaCmd.AddCommand(mediaPostsCmd, mediaTagsCmd, mediaDownloadCmd)

	mediaPostsCmd.Flags().IntVar(&postsLimit, "limit", 10, fmt.Sprintf("number of posts (max %d)", mediaapi.MaxLimit))
	mediaPostsCmd.Flags().StringVar(&postsPage, "page", "", "page number or cursor such as b12345")
	mediaPostsCmd.Flags().StringVar(&postsRating, "rating", "", "rating filter: s, q or e")
	mediaPostsCmd.Flags().StringVar(&postsType, "type", "", "file type filter: jpg, png, gif or webm")
	mediaPostsCmd.Flags().StringVar(&postsOrder, "order", "", "sort order, e.g. score or favcount")
	mediaPostsCmd.Flags().StringVar(&postsDate, "date", "", "date range: day, week, month or year")

	mediaTagsCmd.Flags().StringVar(&tagsCategory, "category", "", "tag category name or number")
	mediaTagsCmd.Flags().StringVar(&tagsOrder, "order", "count", "tag order")
	mediaTagsCmd.Flags().IntVar(&tagsLimit, "limit", 75, fmt.Sprintf("number of tags (max %d)", mediaapi.MaxLimit))

	mediaDownloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "output file (default is the URL's base name)")
}

// withMediaClient builds a client, runs fn and drains the client.
func withMediaClient(fn func(ctx context.Context, c *mediaapi.Client) error) error {
	m, err := startMetrics()
	if err != nil {
		return err
	}
	c, err := mediaapi.NewClient(settings.MediaConfig(),
		mediaapi.WithLogger(appLogger()),
		mediaapi.WithRecorder(m),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, c)
}

func contentParams(tags []string) (mediaapi.ContentParams, error) {
	p := mediaapi.ContentParams{
		Tags:      tags,
		Rating:    models.Rating(postsRating),
		FileType:  models.FileType(postsType),
		SortOrder: models.SortOrder(postsOrder),
		DateRange: models.DateRange(postsDate),
	}
	if p.Rating != "" && !p.Rating.Valid() {
		return p, fmt.Errorf("invalid rating %q", postsRating)
	}
	if p.FileType != "" && !p.FileType.Valid() {
		return p, fmt.Errorf("invalid file type %q", postsType)
	}
	if p.SortOrder != "" && !p.SortOrder.Valid() {
		return p, fmt.Errorf("invalid sort order %q", postsOrder)
	}
	if p.DateRange != "" && !p.DateRange.Valid() {
		return p, fmt.Errorf("invalid date range %q", postsDate)
	}
	return p, nil
}

func runMediaPosts(cmd *cobra.Command, args []string) error {
	params, err := contentParams(args)
	if err != nil {
		return err
	}
	return withMediaClient(func(ctx context.Context, c *mediaapi.Client) error {
		resp, err := c.GetContent(ctx, postsLimit, params, postsPage)
		if err != nil {
			return err
		}
		if IsJSONOutput() {
			return printJSON(resp)
		}
		if len(resp.Posts) == 0 {
			fmt.Println("No posts found")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Rating", "Type", "Size", "Artists", "URL")
		for _, p := range resp.Posts {
			table.Append(
				p.ContentID,
				p.Rating,
				p.File.Extension,
				models.HumanReadableSize(p.File.Size),
				strings.Join(p.Tags["artist"], ", "),
				p.File.URL,
			)
		}
		return table.Render()
	})
}

func runMediaTags(cmd *cobra.Command, args []string) error {
	q := mediaapi.TagQuery{Order: tagsOrder, Limit: tagsLimit}
	if len(args) == 1 {
		q.Search = args[0]
	}
	if tagsCategory != "" {
		cat, err := models.ParseCategory(tagsCategory)
		if err != nil {
			return err
		}
		q.Category = &cat
	}

	return withMediaClient(func(ctx context.Context, c *mediaapi.Client) error {
		resp, err := c.GetTags(ctx, q)
		if err != nil {
			return err
		}
		if IsJSONOutput() {
			return printJSON(resp)
		}
		if len(resp.Tags) == 0 {
			fmt.Println("No tags found")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Name", "Category", "Posts")
		for _, t := range resp.Tags {
			table.Append(t.Name, t.Category.String(), t.PostCount)
		}
		return table.Render()
	})
}

func runMediaDownload(cmd *cobra.Command, args []string) error {
	out := downloadOut
	if out == "" {
		out = path.Base(strings.SplitN(args[0], "?", 2)[0])
	}
	return withMediaClient(func(ctx context.Context, c *mediaapi.Client) error {
		data, err := c.DownloadFile(ctx, args[0])
		if err != nil {
			return err
		}
		if dir := filepath.Dir(out); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Printf("Saved %s (%s)\n", out, models.HumanReadableSize(int64(len(data))))
		return nil
	})
}
