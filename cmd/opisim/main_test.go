package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spirit-labs/opi/conf"
	"github.com/spirit-labs/opi/eps"
	"github.com/spirit-labs/opi/protocol"
	"github.com/spirit-labs/opi/terminal"
	"github.com/spirit-labs/opi/transport"
	"github.com/stretchr/testify/require"
)

func TestPortDefaultsAreMirrored(t *testing.T) {
	cfg, err := loadConfig([]string{"--workstation-id", "EPS-1", "--application-id", "sim"})
	require.NoError(t, err)
	require.Equal(t, conf.DefaultRemotePort, cfg.Connection.LocalPort)
	require.Equal(t, conf.DefaultLocalPort, cfg.Connection.RemotePort)
	require.False(t, cfg.PrintReceipt)
}

func TestPushDeviceRequestFromFile(t *testing.T) {
	posCfg := conf.DefaultConnectionConfig()
	posCfg.LocalHost = "127.0.0.1"
	posCfg.LocalPort = 0
	posCfg.AcceptTimeout = 5 * time.Second
	link, err := transport.NewConnection(posCfg)
	require.NoError(t, err)
	term, err := terminal.NewTerminalWithLink(link, conf.ProtocolConfig{WorkstationID: "POS-1", ApplicationID: "till"},
		conf.TerminalConfig{})
	require.NoError(t, err)
	printed := make(chan string, 10)
	require.NoError(t, term.RegisterDevice(protocol.Printer, terminal.HandlerFunc(func(spec protocol.OutputSpec) (protocol.Result, error) {
		for _, line := range spec.Lines {
			printed <- line.Text
		}
		return protocol.Success, nil
	})))
	require.NoError(t, term.Bind())
	done := make(chan error, 1)
	go func() {
		done <- term.Listen()
	}()
	defer func() {
		require.NoError(t, term.Close())
		require.NoError(t, <-done)
	}()

	request := `<?xml version="1.0" encoding="UTF-8"?>
<DeviceRequest RequestType="Output" RequestID="9" WorkstationID="POS-1">
  <Output OutDeviceTarget="Printer">
    <TextLine>HELLO</TextLine>
  </Output>
</DeviceRequest>`
	path := filepath.Join(t.TempDir(), "request.xml")
	require.NoError(t, os.WriteFile(path, []byte(request), 0o600))

	simCfg := conf.DefaultConnectionConfig()
	simCfg.LocalPort = 0
	simCfg.RemoteHost = "127.0.0.1"
	simCfg.RemotePort = link.LocalAddr().(*net.TCPAddr).Port
	simCfg.RoundTripTimeout = 5 * time.Second
	sim, err := eps.NewSimulator(eps.Config{
		Connection: simCfg,
		Protocol:   conf.ProtocolConfig{WorkstationID: "EPS-1", ApplicationID: "sim"},
	})
	require.NoError(t, err)

	require.NoError(t, pushDeviceRequest(sim, path))
	require.Equal(t, "HELLO", <-printed)
}
