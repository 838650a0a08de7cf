// Command vpnconfigurator provisions an OpenVPN server on a DD-WRT or
// EdgeRouter router: it builds the certificate authority, issues server and
// client certificates, renders the router configuration and optionally
// applies it over SSH.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"
	"github.com/spf13/cobra"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configFile string
	outputDir  string
	logFile    string
	devMode    bool
	verbose    bool
}

func main() {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "vpnconfigurator",
		Short:         "Configure an OpenVPN server on a home router",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to a YAML or JSON configuration file")
	flags.StringVarP(&opts.outputDir, "output", "o", "", "Directory to save certificates and profiles (overrides the config file)")
	flags.StringVar(&opts.logFile, "log-file", "vpnconfigurator.log", "File receiving the detailed log")
	flags.BoolVar(&opts.devMode, "dev", false, "Use static DH parameters and backdate certificates (testing only)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Also print the detailed log to stderr")

	var closeLog func()
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		closeLog, err = setupLogging(opts)
		return err
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			closeLog()
		}
	}

	root.AddCommand(runCommand(opts), checkCommand(opts), wizardCommand(opts))

	// Interrupts cancel the context so open SSH sessions and temp files are
	// released before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, failure.Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}

// setupLogging sends everything to the log file and, with --verbose, also
// to stderr.
func setupLogging(opts *globalOptions) (func(), error) {
	f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	handlers := []log.Handler{text.New(f)}
	if opts.verbose {
		handlers = append(handlers, cli.New(os.Stderr))
	}
	log.Log = &log.Logger{Handler: multi.New(handlers...), Level: log.DebugLevel}
	return func() { f.Close() }, nil
}
