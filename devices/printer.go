package devices

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/spirit-labs/opi/errors"
	"github.com/spirit-labs/opi/protocol"
	"go.bug.st/serial"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// cutPaper is the ESC/POS feed-and-partial-cut sequence.
var cutPaper = []byte{0x1d, 'V', 66, 3}

var codePages = map[string]*charmap.Charmap{
	"cp437":      charmap.CodePage437,
	"cp850":      charmap.CodePage850,
	"cp858":      charmap.CodePage858,
	"cp1252":     charmap.Windows1252,
	"iso8859-1":  charmap.ISO8859_1,
	"iso8859-15": charmap.ISO8859_15,
}

// LinePrinter prints the text of each line of an output, one line per row, encoded for the printer's code page.
type LinePrinter struct {
	lock    sync.Mutex
	w       io.Writer
	encoder *encoding.Encoder
	closer  io.Closer
}

// NewLinePrinter writes to w. codePage is one of the supported code page names or "utf-8" for no conversion.
func NewLinePrinter(w io.Writer, codePage string) (*LinePrinter, error) {
	p := &LinePrinter{w: w}
	codePage = strings.ToLower(strings.TrimSpace(codePage))
	if codePage != "utf-8" && codePage != "" {
		cm, ok := codePages[codePage]
		if !ok {
			return nil, errors.NewOpiErrorf(errors.InvalidArgument, "unsupported code page %s", codePage)
		}
		// unsupported characters become the code page substitute byte
		p.encoder = encoding.ReplaceUnsupported(cm.NewEncoder())
	}
	return p, nil
}

// OpenSerialPrinter opens a receipt printer attached to a serial port, 8N1.
func OpenSerialPrinter(portName string, baud int, codePage string) (*LinePrinter, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.NewConnectionError("failed to open printer port %s: %v", portName, err)
	}
	p, err := NewLinePrinter(port, codePage)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	p.closer = port
	return p, nil
}

// Output prints the lines of spec. An output without lines only checks the printer is usable, which for a stream
// always succeeds.
func (p *LinePrinter) Output(spec protocol.OutputSpec) (protocol.Result, error) {
	var buf bytes.Buffer
	for _, line := range spec.Lines {
		if line.Text != "" || line.Type == "TextLine" {
			text := line.Text
			if p.encoder != nil {
				encoded, err := p.encoder.String(text)
				if err != nil {
					return protocol.Failure, errors.WithStack(err)
				}
				text = encoded
			}
			buf.WriteString(text)
			buf.WriteByte('\n')
		}
		if line.Attributes["CutPaper"] == "true" {
			buf.Write(cutPaper)
		}
	}
	if spec.Attributes["CutPaper"] == "true" {
		buf.Write(cutPaper)
	}
	if buf.Len() == 0 {
		return protocol.Success, nil
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, err := p.w.Write(buf.Bytes()); err != nil {
		return protocol.Failure, errors.NewConnectionError("printer write failed: %v", err)
	}
	return protocol.Success, nil
}

func (p *LinePrinter) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
