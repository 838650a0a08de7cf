package main

import (
	"context"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/routervpn/configurator/internal/config"
	"github.com/routervpn/configurator/internal/keystore"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/progress"
	"github.com/routervpn/configurator/internal/session"
	"github.com/routervpn/configurator/internal/vpn"
	"github.com/spf13/cobra"
)

func runCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate certificates and router configuration from a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadRequest(opts)
			if err != nil {
				return err
			}
			return provision(cmd.Context(), req)
		},
	}
}

// loadRequest reads --config and applies the flag overrides.
func loadRequest(opts *globalOptions) (models.ConfigRequest, error) {
	if opts.configFile == "" {
		return models.ConfigRequest{}, fmt.Errorf("--config is required (or use the wizard command)")
	}
	req, err := config.LoadConfigFromFile(opts.configFile)
	if err != nil {
		return req, err
	}
	applyFlags(&req, opts)
	return req, nil
}

func applyFlags(req *models.ConfigRequest, opts *globalOptions) {
	if opts.outputDir != "" {
		req.Params.OutputDir = opts.outputDir
	}
	if opts.devMode {
		req.DevMode = true
		config.Complete(req)
	}
}

// provision runs the configurator with a progress bar and prints the
// summary.
func provision(ctx context.Context, req models.ConfigRequest) error {
	out := keystore.NewFS(req.Params.OutputDir)
	sess := session.New(log.Log)
	bar := progress.NewBar(os.Stdout, progress.Steps(req))
	bar.Attach(sess)

	log.WithField("output", out.Root).WithField("router", string(req.Params.RouterMode)).Info("starting VPN configuration")
	configurator, err := vpn.NewConfigurator(req, sess, out, vpn.WithLogger(log.Log))
	if err != nil {
		return err
	}
	result, err := configurator.ConfigureVPN(ctx)
	if err != nil {
		bar.Complete(sess.Snapshot().Last())
		return err
	}
	return printSummary(os.Stdout, req, out, result)
}
