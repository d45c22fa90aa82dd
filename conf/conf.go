package conf

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spirit-labs/opi/errors"
)

const (
	DefaultLocalHost  = "localhost"
	DefaultLocalPort  = 4102
	DefaultRemoteHost = "localhost"
	DefaultRemotePort = 4100

	DefaultAcceptTimeout    = 120 * time.Second
	DefaultRoundTripTimeout = 330 * time.Second
	DefaultIdleTimeout      = 300 * time.Second
	DefaultConnectTimeout   = 5 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultMaxFrameSize     = 8 * 1024 * 1024

	DefaultMetricsBind = "localhost:9102"

	DefaultPrinterBaud     = 9600
	DefaultPrinterCodePage = "cp437"
	DefaultJournalSubject  = "opi.journal"
)

// ConnectionConfig describes both channels. Channel 0 is the outbound POS->EPS connection made to the remote address,
// channel 1 is the inbound EPS->POS connection accepted on the local address. Port flag defaults come from the
// local_port and remote_port variables, see PortVars.
type ConnectionConfig struct {
	LocalHost  string `help:"Host the device request listener (channel 1) binds to" default:"localhost"`
	LocalPort  int    `help:"Port the device request listener (channel 1) binds to" default:"${local_port}"`
	RemoteHost string `help:"Host of the EPS (channel 0)" default:"localhost"`
	RemotePort int    `help:"Port of the EPS (channel 0)" default:"${remote_port}"`

	AcceptTimeout    time.Duration `help:"Max time between a peer connecting and its message arriving" default:"120s"`
	RoundTripTimeout time.Duration `name:"round-trip-timeout" help:"Max time between sending a request and receiving the whole response" default:"330s"`
	// IdleTimeout is the documented maximum time between any two messages on a channel. It is carried for
	// compatibility with terminal configurations and is not enforced.
	IdleTimeout    time.Duration `help:"Max idle time between messages (informational)" default:"300s"`
	ConnectTimeout time.Duration `help:"Dial timeout for outbound requests" default:"5s"`
	WriteTimeout   time.Duration `help:"Write deadline for each frame sent" default:"5s"`
	MaxFrameSize   int           `help:"Largest frame length accepted from a peer" default:"8388608"`
}

// PortVars returns the values for the local_port and remote_port variables used in the ConnectionConfig flag
// defaults. The POS and the EPS simulator see the two channels from opposite ends.
func PortVars(localPort int, remotePort int) map[string]string {
	return map[string]string{
		"local_port":  strconv.Itoa(localPort),
		"remote_port": strconv.Itoa(remotePort),
	}
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		LocalHost:        DefaultLocalHost,
		LocalPort:        DefaultLocalPort,
		RemoteHost:       DefaultRemoteHost,
		RemotePort:       DefaultRemotePort,
		AcceptTimeout:    DefaultAcceptTimeout,
		RoundTripTimeout: DefaultRoundTripTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		ConnectTimeout:   DefaultConnectTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		MaxFrameSize:     DefaultMaxFrameSize,
	}
}

// ApplyDefaults fills in zero values. Ports are left alone, a local port of 0 asks for an ephemeral port.
func (c *ConnectionConfig) ApplyDefaults() {
	if c.LocalHost == "" {
		c.LocalHost = DefaultLocalHost
	}
	if c.RemoteHost == "" {
		c.RemoteHost = DefaultRemoteHost
	}
	if c.AcceptTimeout == 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
	if c.RoundTripTimeout == 0 {
		c.RoundTripTimeout = DefaultRoundTripTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
}

func (c *ConnectionConfig) Validate() error {
	if strings.TrimSpace(c.LocalHost) == "" {
		return errors.NewInvalidConfigurationError("local-host must be specified")
	}
	if strings.TrimSpace(c.RemoteHost) == "" {
		return errors.NewInvalidConfigurationError("remote-host must be specified")
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return errors.NewInvalidConfigurationError("local-port must be >= 0 and <= 65535")
	}
	if c.RemotePort < 1 || c.RemotePort > 65535 {
		return errors.NewInvalidConfigurationError("remote-port must be > 0 and <= 65535")
	}
	if c.AcceptTimeout <= 0 {
		return errors.NewInvalidConfigurationError("accept-timeout must be > 0")
	}
	if c.RoundTripTimeout <= 0 {
		return errors.NewInvalidConfigurationError("round-trip-timeout must be > 0")
	}
	if c.IdleTimeout <= 0 {
		return errors.NewInvalidConfigurationError("idle-timeout must be > 0")
	}
	if c.ConnectTimeout <= 0 {
		return errors.NewInvalidConfigurationError("connect-timeout must be > 0")
	}
	if c.WriteTimeout <= 0 {
		return errors.NewInvalidConfigurationError("write-timeout must be > 0")
	}
	if c.MaxFrameSize <= 0 {
		return errors.NewInvalidConfigurationError("max-frame-size must be > 0")
	}
	return nil
}

func (c *ConnectionConfig) LocalAddress() string {
	return net.JoinHostPort(c.LocalHost, strconv.Itoa(c.LocalPort))
}

func (c *ConnectionConfig) RemoteAddress() string {
	return net.JoinHostPort(c.RemoteHost, strconv.Itoa(c.RemotePort))
}

type ProtocolConfig struct {
	WorkstationID string `help:"Identifies the logical workstation to the EPS" required:""`
	ApplicationID string `help:"Identifies the application sending requests (ApplicationSender)" required:""`
}

func (p *ProtocolConfig) Validate() error {
	if strings.TrimSpace(p.WorkstationID) == "" {
		return errors.NewInvalidConfigurationError("workstation-id must be specified")
	}
	if strings.TrimSpace(p.ApplicationID) == "" {
		return errors.NewInvalidConfigurationError("application-id must be specified")
	}
	return nil
}

type TerminalConfig struct {
	ReplayCacheSize int `help:"Number of device responses kept to answer repeated device requests. 0 disables" default:"64"`
}

func (t *TerminalConfig) Validate() error {
	if t.ReplayCacheSize < 0 {
		return errors.NewInvalidConfigurationError("replay-cache-size must be >= 0")
	}
	return nil
}

type DevicesConfig struct {
	PrinterPort     string `help:"Serial port of the receipt printer. Empty disables the printer" default:""`
	PrinterBaud     int    `help:"Baud rate of the receipt printer" default:"9600"`
	PrinterCodePage string `help:"Code page printer text is encoded in" enum:"cp437,cp850,cp858,cp1252,iso8859-1,iso8859-15,utf-8" default:"cp437"`
	JournalNATSURL  string `name:"journal-nats-url" help:"NATS server the Log device publishes to. Empty disables the journal" default:""`
	JournalSubject  string `help:"NATS subject for Log device lines" default:"opi.journal"`
	LogDisplays     bool   `help:"Write display output to the log" default:"true"`
}

func (d *DevicesConfig) ApplyDefaults() {
	if d.PrinterBaud == 0 {
		d.PrinterBaud = DefaultPrinterBaud
	}
	if d.PrinterCodePage == "" {
		d.PrinterCodePage = DefaultPrinterCodePage
	}
	if d.JournalSubject == "" {
		d.JournalSubject = DefaultJournalSubject
	}
}

func (d *DevicesConfig) Validate() error {
	if d.PrinterPort != "" && d.PrinterBaud <= 0 {
		return errors.NewInvalidConfigurationError("device-printer-baud must be > 0")
	}
	if d.JournalNATSURL != "" && strings.TrimSpace(d.JournalSubject) == "" {
		return errors.NewInvalidConfigurationError("device-journal-subject must be specified if device-journal-nats-url is set")
	}
	return nil
}

type MetricsConfig struct {
	Enabled bool   `help:"Export prometheus metrics" default:"false"`
	Bind    string `help:"Address the metrics exporter listens on" default:"localhost:9102"`
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Bind == "" {
		return errors.NewInvalidConfigurationError("metrics-bind must be specified if metrics-enabled is true")
	}
	return nil
}

type Config struct {
	Connection ConnectionConfig `embed:"" prefix:""`
	Protocol   ProtocolConfig   `embed:"" prefix:""`
	Terminal   TerminalConfig   `embed:"" prefix:""`
	Devices    DevicesConfig    `embed:"" prefix:"device-"`
	Metrics    MetricsConfig    `embed:"" prefix:"metrics-"`
}

func (c *Config) ApplyDefaults() {
	c.Connection.ApplyDefaults()
	c.Devices.ApplyDefaults()
	if c.Metrics.Enabled && c.Metrics.Bind == "" {
		c.Metrics.Bind = DefaultMetricsBind
	}
}

func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if err := c.Protocol.Validate(); err != nil {
		return err
	}
	if err := c.Terminal.Validate(); err != nil {
		return err
	}
	if err := c.Devices.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

func (c *Config) String() string {
	return fmt.Sprintf("workstation=%s application=%s channel0=%s channel1=%s", c.Protocol.WorkstationID,
		c.Protocol.ApplicationID, c.Connection.RemoteAddress(), c.Connection.LocalAddress())
}
