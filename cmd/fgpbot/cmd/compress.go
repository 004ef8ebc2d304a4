package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fgp-bot/fgpbot/internal/config"
	"github.com/fgp-bot/fgpbot/pkg/compress"
	"github.com/fgp-bot/fgpbot/pkg/filemanager"
	"github.com/fgp-bot/fgpbot/pkg/models"
)

var (
	compressTargetMiB float64
	compressOutDir    string
	compressOversized bool
)

var compressCmd = &cobra.Command{
	Use:   "compress [file]",
	Short: "Shrink media below the upload limit",
	Long: `Compress reduces a video, GIF, JPEG or PNG to at most the target size.
Videos are re-encoded in two passes with ffmpeg, GIFs are searched over
gifsicle color and lossy levels, and still images are re-encoded at lower
quality or with fewer colors.

With --oversized every tracked file above the bot's upload limit that has
no converted copy yet is compressed into the converted directory and the
result is recorded in the database.

Example:
  fgpbot compress clip.mp4 --target-mib 8
  fgpbot compress --oversized`,
	Args: func(cmd *cobra.Command, args []string) error {
		if compressOversized {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runCompress,
}

func init() {
	rootCmd.AddCommand(compressCmd)

	compressCmd.Flags().Float64Var(&compressTargetMiB, "target-mib", 0, "target size in MiB (default is the bot's upload limit)")
	compressCmd.Flags().StringVar(&compressOutDir, "out-dir", "", "output directory (default is next to the input)")
	compressCmd.Flags().BoolVar(&compressOversized, "oversized", false, "compress every tracked file over the upload limit")
}

func runCompress(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if compressOversized {
		st, err := openStore()
		if err != nil {
			return err
		}
		done, failed, err := newFileManager(st, nil).CompressOversized(ctx)
		if err != nil {
			return err
		}
		if IsJSONOutput() {
			return printJSON(map[string]int{"compressed": done, "failed": failed})
		}
		fmt.Printf("Compressed %d files, %d failed\n", done, failed)
		if failed > 0 {
			return &ExitError{Code: 1}
		}
		return nil
	}

	target := settings.Bot.MaxFileSize
	if compressTargetMiB > 0 {
		target = int64(compressTargetMiB * config.MiB)
	}
	before, err := filemanager.FileSize(args[0])
	if err != nil {
		return err
	}

	out, err := compress.New(appLogger()).Compress(ctx, args[0], target, compressOutDir)
	if errors.Is(err, compress.ErrUnsupported) {
		return fmt.Errorf("%s: only video, GIF, JPEG and PNG files can be compressed", args[0])
	}
	if err != nil {
		return err
	}
	after, err := filemanager.FileSize(out)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(map[string]interface{}{
			"input":       args[0],
			"output":      out,
			"input_size":  before,
			"output_size": after,
			"target_size": target,
			"fits":        after <= target,
		})
	}
	fmt.Printf("%s -> %s\n", args[0], out)
	fmt.Printf("%s -> %s (target %s)\n", models.HumanReadableSize(before), models.HumanReadableSize(after), models.HumanReadableSize(target))
	if after > target {
		fmt.Println("Warning: result is still over the target size")
	}
	return nil
}
