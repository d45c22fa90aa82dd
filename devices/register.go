package devices

import (
	"github.com/spirit-labs/opi/conf"
	log "github.com/spirit-labs/opi/logger"
	"github.com/spirit-labs/opi/protocol"
	"github.com/spirit-labs/opi/terminal"
)

// Registrar is implemented by terminal.Terminal.
type Registrar interface {
	RegisterDevice(device protocol.Device, handler terminal.Handler) error
}

// Devices holds the built-in handlers created from configuration so they can be closed together.
type Devices struct {
	printer *LinePrinter
	journal *Journal
}

// Register creates the handlers cfg asks for and registers them with r. Devices that are not configured stay
// unregistered and are reported to the EPS as DeviceUnavailable.
func Register(r Registrar, cfg conf.DevicesConfig) (*Devices, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Devices{}
	if cfg.PrinterPort != "" {
		printer, err := OpenSerialPrinter(cfg.PrinterPort, cfg.PrinterBaud, cfg.PrinterCodePage)
		if err != nil {
			return nil, err
		}
		d.printer = printer
		if err := d.register(r, printer, protocol.Printer, protocol.PrinterReceipt); err != nil {
			return nil, err
		}
		log.Infof("receipt printer on %s at %d baud", cfg.PrinterPort, cfg.PrinterBaud)
	}
	if cfg.LogDisplays {
		for _, device := range []protocol.Device{protocol.CashierDisplay, protocol.CustomerDisplay} {
			if err := d.register(r, NewLogHandler(device), device); err != nil {
				return nil, err
			}
		}
	}
	if cfg.JournalNATSURL != "" {
		journal, err := ConnectNATSJournal(cfg.JournalNATSURL, cfg.JournalSubject)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.journal = journal
		if err := d.register(r, journal, protocol.Log); err != nil {
			return nil, err
		}
		log.Infof("journal publishing to %s on %s", cfg.JournalSubject, cfg.JournalNATSURL)
	} else if err := d.register(r, NewLogHandler(protocol.Log), protocol.Log); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Devices) register(r Registrar, handler terminal.Handler, devices ...protocol.Device) error {
	for _, device := range devices {
		if err := r.RegisterDevice(device, handler); err != nil {
			d.Close()
			return err
		}
	}
	return nil
}

func (d *Devices) Close() {
	if d.printer != nil {
		if err := d.printer.Close(); err != nil {
			log.Warnf("failed to close printer: %v", err)
		}
	}
	if d.journal != nil {
		d.journal.Close()
	}
}
