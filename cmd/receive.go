package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kvsview/kvsview/config"
	"github.com/kvsview/kvsview/internal/display"
	"github.com/kvsview/kvsview/internal/producer"
	"github.com/kvsview/kvsview/internal/protocol"
	"github.com/kvsview/kvsview/internal/receiver"
	"github.com/kvsview/kvsview/internal/util"
	"github.com/kvsview/kvsview/internal/webview"
)

type ReceiveOptions struct {
	Host          string
	Port          int
	Variant       string
	ChunkSize     int
	AcceptTimeout time.Duration

	NoProducer      bool
	ProducerCommand string
	Classpath       string
	Class           string
	Stream          string
	Region          string
	KillProducer    bool

	Display   string
	KeepFiles bool
	WebAddr   string
	OpenWeb   bool
}

func NewReceiveCommand() *cobra.Command {
	opts := &ReceiveOptions{}

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Listen for the producer and display the frames it streams",
		Long: `Bind the local port, launch the producer with the port, stream name and region,
accept its connection, send the greeting and display every frame until the
stream ends or a malformed frame arrives.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteReceive(cmd, opts)
		},
		Example: `  # Launch the Java producer and show frames in the image viewer
  kvsview receive

  # Frames without timecodes, producer started by hand
  kvsview receive --variant plain --no-producer

  # Live preview in the browser instead of one window per frame
  kvsview receive --display web --open`,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", config.GetHost(), "Address to listen on")
	flags.IntVarP(&opts.Port, "port", "p", config.GetPort(), "Port to listen on, also passed to the producer")
	flags.StringVar(&opts.Variant, "variant", config.GetVariant(), "Segment format: plain or timecode")
	flags.IntVar(&opts.ChunkSize, "chunk-size", config.GetChunkSize(), "Bytes per socket read")
	flags.DurationVar(&opts.AcceptTimeout, "accept-timeout", config.GetAcceptTimeout(), "How long to wait for the producer to connect (0 waits forever)")

	flags.BoolVar(&opts.NoProducer, "no-producer", !config.IsProducerEnabled(), "Do not launch the producer")
	flags.StringVar(&opts.ProducerCommand, "producer-command", config.GetProducerCommand(), "Java executable used to run the producer")
	flags.StringVar(&opts.Classpath, "classpath", config.GetProducerClasspath(), "Producer classpath")
	flags.StringVar(&opts.Class, "class", config.GetProducerClass(), "Producer main class")
	flags.StringVarP(&opts.Stream, "stream", "s", config.GetStream(), "Stream name passed to the producer")
	flags.StringVarP(&opts.Region, "region", "r", config.GetRegion(), "Region passed to the producer")
	flags.BoolVar(&opts.KillProducer, "kill-producer", config.KillProducerOnExit(), "Kill the producer when receiving ends")

	flags.StringVarP(&opts.Display, "display", "d", config.GetDisplayMode(), "Comma separated displays: viewer, log, web")
	flags.BoolVar(&opts.KeepFiles, "keep-files", config.KeepDisplayFiles(), "Never prune frame files left by earlier runs")
	flags.StringVar(&opts.WebAddr, "web-addr", config.GetWebAddr(), "Listen address of the web preview")
	flags.BoolVar(&opts.OpenWeb, "open", config.OpenWebPreview(), "Open the web preview in the browser")

	return cmd
}

func ExecuteReceive(cmd *cobra.Command, opts *ReceiveOptions) error {
	logger := util.GetLogger()

	variant, err := protocol.ParseVariant(opts.Variant)
	if err != nil {
		return err
	}

	disp, err := buildDisplay(opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer disp.Close()

	sessionOpts := receiver.Options{
		Host:          opts.Host,
		Port:          opts.Port,
		ChunkSize:     opts.ChunkSize,
		Variant:       variant,
		AcceptTimeout: opts.AcceptTimeout,
		Display:       disp,
		Status:        cmd.OutOrStdout(),
	}

	var launcher *producer.Launcher
	if !opts.NoProducer {
		launcher = producer.NewLauncher(producer.JavaOptions(
			opts.ProducerCommand, opts.Classpath, opts.Class, opts.Port, opts.Stream, opts.Region))
		sessionOpts.Producer = launcher
		if opts.KillProducer {
			defer launcher.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := receiver.NewSession(sessionOpts)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s listening on %s (%s frames)\n",
		color.New(color.FgGreen, color.Bold).Sprint("kvsview"),
		color.CyanString("%s:%d", opts.Host, opts.Port),
		variant)
	fmt.Fprintf(out, "Press %s to stop.\n", color.New(color.FgYellow, color.Bold).Sprint("Ctrl+C"))

	runErr := session.Run(ctx)

	stats := session.Stats()
	logger.Info("Receive finished", "session", session.ID(), "frames", stats.Frames, "bytes", stats.Bytes)
	if launcher != nil && !opts.KillProducer && !launcher.Exited() && launcher.Pid() != 0 {
		logger.Info("Producer left running", "pid", launcher.Pid())
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Fprintln(out, "Interrupted.")
			return nil
		}
		return errors.Wrap(runErr, "receive failed")
	}
	return nil
}

// buildDisplay turns the --display list into one display.Display.
func buildDisplay(opts *ReceiveOptions, out io.Writer) (display.Display, error) {
	var displays display.Multi
	cleanup := func() {
		displays.Close()
	}

	for _, mode := range strings.Split(opts.Display, ",") {
		switch strings.ToLower(strings.TrimSpace(mode)) {
		case "viewer":
			v, err := display.NewViewer(display.KeepFiles(opts.KeepFiles))
			if err != nil {
				cleanup()
				return nil, err
			}
			displays = append(displays, v)
		case "log", "none":
			displays = append(displays, display.Log{})
		case "web":
			srv := webview.NewServer(opts.WebAddr)
			if err := srv.Start(); err != nil {
				cleanup()
				return nil, err
			}
			fmt.Fprintf(out, "Live preview at %s\n", color.CyanString(srv.URL()))
			if opts.OpenWeb {
				if err := srv.OpenBrowser(); err != nil {
					util.GetLogger().Warn("Failed to open browser", "error", err)
				}
			}
			displays = append(displays, srv)
		case "":
		default:
			cleanup()
			return nil, errors.Errorf("unknown display %q (want viewer, log or web)", mode)
		}
	}

	if len(displays) == 0 {
		return display.Log{}, nil
	}
	if len(displays) == 1 {
		return displays[0], nil
	}
	return displays, nil
}
