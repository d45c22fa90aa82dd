package protocol

// Device names a target of a device request (OutDeviceTarget). Any string may arrive on the wire, only devices with
// a registered handler are served.
type Device string

const (
	CashierDisplay           Device = "CashierDisplay"
	CustomerDisplay          Device = "CustomerDisplay"
	Printer                  Device = "Printer"
	PrinterReceipt           Device = "PrinterReceipt"
	ICCrw                    Device = "ICCrw"
	CardReader               Device = "CardReader"
	PinEntryDeviceCardReader Device = "PinEntryDeviceCardReader"
	PinPad                   Device = "PinPad"
	PEDReaderPrinter         Device = "PEDReaderPrinter"
	MSR                      Device = "MSR"
	RFID                     Device = "RFID"
	BarcodeScanner           Device = "BarcodeScanner"
	CashierKeyboard          Device = "CashierKeyboard"
	CashierTerminal          Device = "CashierTerminal"
	CustomerKeyboard         Device = "CustomerKeyboard"
	CustomerTerminal         Device = "CustomerTerminal"
	Log                      Device = "Log"
)

var devices = []Device{
	CashierDisplay, CustomerDisplay, Printer, PrinterReceipt, ICCrw, CardReader, PinEntryDeviceCardReader, PinPad,
	PEDReaderPrinter, MSR, RFID, BarcodeScanner, CashierKeyboard, CashierTerminal, CustomerKeyboard, CustomerTerminal,
	Log,
}

func Devices() []Device {
	res := make([]Device, len(devices))
	copy(res, devices)
	return res
}

// Known reports whether d is one of the standard device names.
func (d Device) Known() bool {
	for _, known := range devices {
		if d == known {
			return true
		}
	}
	return false
}

func (d Device) String() string {
	return string(d)
}
