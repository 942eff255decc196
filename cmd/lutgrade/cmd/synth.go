package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jpfielding/lutgrade.go/pkg/media/lgv"
	"github.com/jpfielding/lutgrade.go/pkg/media/testsrc"
	"github.com/jpfielding/lutgrade.go/pkg/timebase"
	"github.com/spf13/cobra"
)

// NewSynthCmd writes a synthetic LGV clip to grade.
func NewSynthCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synth <out.lgv>",
		Short: "write a test pattern video",
		Long:  "Writes colour bars, a grey ramp, and a moving white square as an LGV video.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := testsrc.DefaultOptions
			opts.Frames, _ = cmd.Flags().GetInt("frames")
			opts.Width, _ = cmd.Flags().GetInt("width")
			opts.Height, _ = cmd.Flags().GetInt("height")
			fps, _ := cmd.Flags().GetInt("fps")
			opts.FrameRate = timebase.New(fps, 1)
			opts.Codec, _ = cmd.Flags().GetString("codec")
			opts.Audio, _ = cmd.Flags().GetBool("audio")

			if err := testsrc.Write(lgv.Service{}, args[0], opts); err != nil {
				return err
			}
			slog.InfoContext(ctx, "test pattern written", slog.String("out", args[0]), slog.Int("frames", opts.Frames))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", opts.Frames, args[0])
			return nil
		},
	}
	f := cmd.Flags()
	f.IntP("frames", "n", testsrc.DefaultOptions.Frames, "frames to write")
	f.Int("width", testsrc.DefaultOptions.Width, "frame width")
	f.Int("height", testsrc.DefaultOptions.Height, "frame height")
	f.Int("fps", testsrc.DefaultOptions.FrameRate.Num, "frames per second")
	f.String("codec", testsrc.DefaultOptions.Codec, "picture codec ("+strings.Join(lgv.Codecs(), "|")+")")
	f.Bool("audio", false, "add a silent audio stream")
	return cmd
}
