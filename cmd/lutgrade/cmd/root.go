package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jpfielding/lutgrade.go/pkg/accel"
	"github.com/jpfielding/lutgrade.go/pkg/logging"
	"github.com/jpfielding/lutgrade.go/pkg/media"
	"github.com/jpfielding/lutgrade.go/pkg/media/ffmpeg"
	"github.com/jpfielding/lutgrade.go/pkg/media/lgv"
	"github.com/jpfielding/lutgrade.go/pkg/pipeline"
	"github.com/spf13/cobra"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lutgrade <lut_file> <input_video> <output_video>",
		Short: "apply a 3D LUT colour grade to a video",
		Long: "Decodes the input video, grades every frame through the .cube LUT on the " +
			"parallel transform device, and encodes the result to the output video.",
		Args:          cobra.ExactArgs(3),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(ctx, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// arguments are valid, failures from here on are not usage errors
			cmd.SilenceUsage = true
			return runGrade(ctx, cmd, args[0], args[1], args[2])
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewGenCmd(ctx),
		NewInspectCmd(ctx),
		NewSynthCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.Bool("log-json", false, "log as JSON")
	pf.String("log-file", "", "also log to this file, rotated by size")
	pf.Int("log-max-size", 100, "log file size in MB before rotation")
	pf.Int("log-max-backups", 3, "rotated log files to keep")

	f := cmd.Flags()
	f.String("service", "auto", "codec service (auto|lgv|ffmpeg)")
	f.Int("workers", 0, "transform lanes, 0 for one per CPU")
	f.Int("tile-size", accel.DefaultTileSize, "transform tile edge in pixels")
	f.Int64("device-memory", accel.DefaultMemoryLimit>>20, "device memory budget in MiB")
	return cmd
}

func setupLogging(ctx context.Context, cmd *cobra.Command) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")
	logFile, _ := cmd.Flags().GetString("log-file")
	maxSize, _ := cmd.Flags().GetInt("log-max-size")
	maxBackups, _ := cmd.Flags().GetInt("log-max-backups")

	var level slog.Level
	levelErr := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
	if levelErr != nil {
		level = slog.LevelInfo
	}
	w := logging.Output(cmd.ErrOrStderr(), logFile, maxSize, maxBackups)
	slog.SetDefault(logging.Logger(w, asJSON, level))
	if levelErr != nil {
		slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", levelErr)
	}
	return nil
}

func runGrade(ctx context.Context, cmd *cobra.Command, lutPath, in, out string) error {
	name, _ := cmd.Flags().GetString("service")
	workers, _ := cmd.Flags().GetInt("workers")
	tile, _ := cmd.Flags().GetInt("tile-size")
	memMB, _ := cmd.Flags().GetInt64("device-memory")

	svc, err := openService(name, in)
	if err != nil {
		return err
	}
	p := pipeline.New(pipeline.Config{
		LUTPath:    lutPath,
		InputPath:  in,
		OutputPath: out,
		Encoder:    media.DefaultEncoderConfig,
	}, svc, pipeline.HostDevice(accel.Options{
		Workers:     workers,
		TileSize:    tile,
		MemoryLimit: memMB << 20,
	}))
	stats, err := p.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "graded %d frames from %s into %s\n", stats.Graded, in, out)
	return nil
}

// openService picks the codec service. auto uses lgv for .lgv inputs and
// FFmpeg for anything else.
func openService(name, input string) (media.Service, error) {
	switch strings.ToLower(name) {
	case "lgv":
		return lgv.Service{}, nil
	case ffmpeg.Name:
		return ffmpeg.New()
	case "auto", "":
		if strings.EqualFold(filepath.Ext(input), lgv.Ext) {
			return lgv.Service{}, nil
		}
		svc, err := ffmpeg.New()
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not an %s file: %w", pipeline.ErrConfig, input, lgv.Ext, err)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("%w: unknown service %q", pipeline.ErrConfig, name)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), gitsha)
		},
	}
	return cmd
}
