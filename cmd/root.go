package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kvsview/kvsview/config"
	"github.com/kvsview/kvsview/internal/util"
	"github.com/kvsview/kvsview/internal/version"
)

var verbose bool

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kvsview",
		Short: "Receive and display video frames streamed by a local producer",
		Long: `kvsview listens on a local TCP port, launches a producer process that connects
back to it, and displays every base64 encoded image frame the producer streams.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLogger(verbose)
			util.SetupGlobalLogger()
			if f := config.ConfigFileUsed(); f != "" {
				util.GetLogger().Debug("Using config file", "path", f)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				info := version.Info()
				fmt.Fprintf(cmd.OutOrStdout(), "kvsview version %s, build %s\n", info["Version"], info["GitCommit"])
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(NewReceiveCommand())
	rootCmd.AddCommand(NewProduceCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

func Execute() error {
	return NewRootCommand().Execute()
}
