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
	"syscall"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"
	"github.com/spirit-labs/opi/common"
	"github.com/spirit-labs/opi/conf"
	"github.com/spirit-labs/opi/eps"
	"github.com/spirit-labs/opi/errors"
	log "github.com/spirit-labs/opi/logger"
)

// The simulator sees the channels from the EPS end: it listens where the POS sends requests and connects to where
// the POS listens for device requests.
type arguments struct {
	Config        kong.ConfigFlag       `help:"Path to config file" type:"existingfile"`
	Connection    conf.ConnectionConfig `help:"Connection configuration" embed:"" prefix:""`
	Protocol      conf.ProtocolConfig   `help:"Protocol configuration" embed:"" prefix:""`
	Log           log.Config            `help:"Configuration for the logger" embed:"" prefix:"log-"`
	PrintReceipt  bool                  `help:"Print a receipt on the POS printer for each card payment"`
	DeviceRequest string                `help:"Push the device request in this file to the POS, print the response and exit" type:"existingfile"`
}

func logErrorAndExit(msg string) {
	log.Errorf(msg)
	os.Exit(1)
}

func main() {
	defer common.PanicHandler()

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		logErrorAndExit(err.Error())
	}
	sim, err := eps.NewSimulator(eps.Config{
		Connection:   cfg.Connection,
		Protocol:     cfg.Protocol,
		PrintReceipt: cfg.PrintReceipt,
	})
	if err != nil {
		logErrorAndExit(err.Error())
	}
	if cfg.DeviceRequest != "" {
		if err := pushDeviceRequest(sim, cfg.DeviceRequest); err != nil {
			logErrorAndExit(err.Error())
		}
		return
	}
	if err := serve(sim); err != nil {
		logErrorAndExit(err.Error())
	}
}

func loadConfig(args []string) (*arguments, error) {
	cfg := arguments{}
	parser, err := kong.New(&cfg, kong.Configuration(konghcl.Loader),
		kong.Vars(conf.PortVars(conf.DefaultRemotePort, conf.DefaultLocalPort)))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cfg.Log.Configure(); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Connection.ApplyDefaults()
	if err := cfg.Connection.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func pushDeviceRequest(sim *eps.Simulator, path string) error {
	message, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}
	resp, err := sim.SendRawDeviceRequest(message)
	if err != nil {
		return err
	}
	log.Infof("device response %s", resp.OverallResult())
	for _, out := range resp.Outputs {
		log.Infof("  %s: %s", out.Device, out.Result)
	}
	return nil
}

func serve(sim *eps.Simulator) error {
	if err := sim.Bind(); err != nil {
		return err
	}
	log.Infof("EPS simulator listening on %s", sim.LocalAddr().String())
	common.Go(func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		log.Warnf("signal: %s received. simulator will be closed", sig.String())
		if err := sim.Close(); err != nil {
			log.Warnf("failure in closing simulator: %v", err)
		}
	})
	return sim.Listen()
}
