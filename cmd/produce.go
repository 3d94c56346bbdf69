package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kvsview/kvsview/config"
	"github.com/kvsview/kvsview/internal/producer"
	"github.com/kvsview/kvsview/internal/protocol"
)

type ProduceOptions struct {
	Host     string
	Port     int
	Variant  string
	Interval time.Duration
	Loops    int
	Timeout  time.Duration
}

func NewProduceCommand() *cobra.Command {
	opts := &ProduceOptions{}

	cmd := &cobra.Command{
		Use:   "produce <image>...",
		Short: "Stream image files to a waiting receiver",
		Long: `Connect to a running 'kvsview receive --no-producer', wait for its greeting and
send each image file as one frame, the same way the Java producer does.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteProduce(cmd, opts, args)
		},
		Example: `  # Send three frames once
  kvsview produce a.jpg b.jpg c.jpg

  # Loop a clip forever at 10 fps without timecodes
  kvsview produce --variant plain --loops 0 --interval 100ms frames/*.png`,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", config.GetHost(), "Receiver address")
	flags.IntVarP(&opts.Port, "port", "p", config.GetPort(), "Receiver port")
	flags.StringVar(&opts.Variant, "variant", config.GetVariant(), "Segment format: plain or timecode")
	flags.DurationVar(&opts.Interval, "interval", 100*time.Millisecond, "Delay between frames")
	flags.IntVar(&opts.Loops, "loops", 1, "How many times to play the image list (0 loops forever)")
	flags.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Connect and greeting timeout")

	return cmd
}

func ExecuteProduce(cmd *cobra.Command, opts *ProduceOptions, files []string) error {
	variant, err := protocol.ParseVariant(opts.Variant)
	if err != nil {
		return err
	}

	images := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", f)
		}
		images = append(images, data)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	conn, err := producer.Dial(ctx, addr, opts.Timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	emitter := producer.NewEmitter(variant, opts.Interval, opts.Loops)
	sent, err := emitter.Emit(ctx, conn, images)
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d frames to %s\n", sent, addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
