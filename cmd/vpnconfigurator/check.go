package main

import (
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/remote"
	"github.com/spf13/cobra"
)

func checkCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the read-only SSH pre-flight checks against the router",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadRequest(opts)
			if err != nil {
				return err
			}
			if req.Params.RouterMode != models.RouterEdge || req.SSH.Host == "" {
				return fmt.Errorf("check needs router_mode %s and ssh settings", models.RouterEdge)
			}
			p := &statusPrinter{w: os.Stdout}
			err = remote.New(remote.WithLogger(log.Log)).CheckSSHConfig(cmd.Context(), req, p.Status)
			p.End()
			if err != nil {
				return err
			}
			success.Fprintln(os.Stdout, "Router is ready for auto configuration")
			return nil
		},
	}
}

// statusPrinter prints session style status lines; sameLine messages
// continue the current line.
type statusPrinter struct {
	w    io.Writer
	open bool
}

func (p *statusPrinter) Status(msg string, sameLine bool) {
	if !sameLine && p.open {
		fmt.Fprintln(p.w)
	}
	fmt.Fprint(p.w, msg)
	p.open = true
}

func (p *statusPrinter) End() {
	if p.open {
		fmt.Fprintln(p.w)
		p.open = false
	}
}
