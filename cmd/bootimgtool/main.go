package main

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	noColor bool
	formats []string
	strict  bool
)

var rootCmd = &cobra.Command{
	Use:   "bootimgtool",
	Short: "Inspect, unpack, pack and convert Android boot images",
	Long: `bootimgtool reads and writes Android boot images in the plain Android,
Bump, Loki, MTK and Sony ELF layouts. The layout of an input image is
detected automatically.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().
		StringSliceVar(&formats, "formats", nil, "Comma-separated input formats to detect (default all)")
	rootCmd.PersistentFlags().
		BoolVar(&strict, "strict", false, "Reject images with a truncated device tree")
}

func isInteractive(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func setupLogging() {
	if noColor || !isInteractive(os.Stderr.Fd()) {
		color.NoColor = true
	}
	log.SetHandler(cli.New(os.Stderr))
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(2)
	}
}

// printError prints the action and cause of wrapped errors on separate
// lines.
func printError(err error) {
	action, cause := splitError(err)
	if cause == "" {
		fmt.Fprintf(os.Stderr, " ! Error: %s\n", action)
		return
	}
	fmt.Fprintf(os.Stderr, " ! Error %s!\n", action)
	fmt.Fprintf(os.Stderr, " ! %s\n", cause)
}
