// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"
	"github.com/spirit-labs/opi/common"
	"github.com/spirit-labs/opi/conf"
	"github.com/spirit-labs/opi/devices"
	"github.com/spirit-labs/opi/errors"
	log "github.com/spirit-labs/opi/logger"
	"github.com/spirit-labs/opi/metrics"
	"github.com/spirit-labs/opi/shell"
	"github.com/spirit-labs/opi/terminal"
	"golang.org/x/sync/errgroup"
)

type arguments struct {
	Config   kong.ConfigFlag `help:"Path to config file" type:"existingfile"`
	POS      conf.Config     `help:"POS configuration" embed:"" prefix:""`
	Log      log.Config      `help:"Configuration for the logger" embed:"" prefix:"log-"`
	Command  string          `help:"Execute a single command, e.g. 'pay 12.50', and exit"`
	Headless bool            `help:"Serve device requests only, without the interactive shell"`
	VI       bool            `help:"Enable VI mode in the shell"`
}

func logErrorAndExit(msg string) {
	log.Errorf(msg)
	os.Exit(1)
}

func main() {
	defer common.PanicHandler()

	r := &runner{}
	cfg, err := r.loadConfig(os.Args[1:])
	if err != nil {
		logErrorAndExit(err.Error())
	}
	if err := r.run(cfg); err != nil {
		logErrorAndExit(err.Error())
	}
}

type runner struct {
	terminal *terminal.Terminal
}

func (r *runner) loadConfig(args []string) (*arguments, error) {
	cfg := arguments{}
	parser, err := kong.New(&cfg, kong.Configuration(konghcl.Loader),
		kong.Vars(conf.PortVars(conf.DefaultLocalPort, conf.DefaultRemotePort)))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cfg.Log.Configure(); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.POS.ApplyDefaults()
	if err := cfg.POS.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *runner) createTerminal(cfg *conf.Config) (*terminal.Terminal, error) {
	term, err := terminal.NewTerminal(*cfg)
	if err != nil {
		return nil, err
	}
	r.terminal = term
	return term, nil
}

func (r *runner) run(args *arguments) error {
	term, err := r.createTerminal(&args.POS)
	if err != nil {
		return err
	}
	metricsServer := metrics.NewServer(args.POS.Metrics)
	if err := metricsServer.Start(); err != nil {
		return err
	}
	defer func() {
		if err := metricsServer.Stop(); err != nil {
			log.Warnf("failed to stop metrics server: %v", err)
		}
	}()
	devs, err := devices.Register(term, args.POS.Devices)
	if err != nil {
		return err
	}
	defer devs.Close()
	if err := term.Bind(); err != nil {
		return err
	}
	log.Infof("POS started: %s", args.POS.String())

	var g errgroup.Group
	g.Go(term.Listen)

	runErr := r.interact(args, term)
	if err := term.Close(); err != nil {
		log.Warnf("failed to close terminal: %v", err)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return runErr
}

func (r *runner) interact(args *arguments, term *terminal.Terminal) error {
	sh := shell.NewShell(term, os.Stdout)
	if args.Command != "" {
		_, err := sh.Execute(args.Command)
		return err
	}
	if args.Headless {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		log.Warnf("signal: %s received. POS will be closed", sig.String())
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.WithStack(err)
	}
	return sh.Run(filepath.Join(home, ".opi.history"), args.VI)
}
