// Package eps simulates the payment terminal side of the link. It answers service and card requests with canned
// successful responses and can push device requests to the POS.
package eps

import (
	"fmt"
	"net"

	"github.com/shopspring/decimal"
	"github.com/spirit-labs/opi/conf"
	"github.com/spirit-labs/opi/errors"
	log "github.com/spirit-labs/opi/logger"
	"github.com/spirit-labs/opi/protocol"
	"github.com/spirit-labs/opi/transport"
	"github.com/spirit-labs/opi/xmldoc"
)

const (
	TerminalID    = "1"
	TerminalBatch = "62"
	STAN          = "724"
	Currency      = "EUR"
	AcquirerID    = "BUYPASS"
	CardPAN       = "0000000000000001"
)

// Config is seen from the EPS: Connection.Local* is where POS requests arrive (channel 0) and Connection.Remote*
// is where the POS listens for device requests (channel 1).
type Config struct {
	Connection conf.ConnectionConfig
	Protocol   conf.ProtocolConfig
	// PrintReceipt sends a receipt to the POS Printer before answering each card payment.
	PrintReceipt bool
}

type Simulator struct {
	conn  *transport.Connection
	codec *protocol.Codec
	print bool
}

func NewSimulator(config Config) (*Simulator, error) {
	if err := config.Protocol.Validate(); err != nil {
		return nil, err
	}
	conn, err := transport.NewConnection(config.Connection)
	if err != nil {
		return nil, err
	}
	ctx, err := protocol.NewContext(config.Protocol.WorkstationID, config.Protocol.ApplicationID)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		conn:  conn,
		codec: protocol.NewCodec(ctx),
		print: config.PrintReceipt,
	}, nil
}

func (s *Simulator) Bind() error {
	return s.conn.Bind()
}

// Listen serves POS requests until Close is called.
func (s *Simulator) Listen() error {
	return s.conn.Listen(s.HandleRequest)
}

func (s *Simulator) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Simulator) Close() error {
	return s.conn.Close()
}

// HandleRequest answers one POS request. Payloads that are not a ServiceRequest or CardServiceRequest are answered
// with a short error text rather than XML.
func (s *Simulator) HandleRequest(message []byte) ([]byte, error) {
	req, err := protocol.ParseRequest(message)
	if err != nil {
		log.Warnf("simulator received bad request: %v", err)
		if errors.IsOpiErrorWithCode(err, errors.InvalidMessage) {
			return []byte("invalid request"), nil
		}
		return []byte("error"), nil
	}
	log.Infof("simulator received %s %s", req.Kind, req.Attributes.RequestType())
	switch req.Kind {
	case protocol.RootCardServiceRequest:
		return s.handleCardRequest(req)
	default:
		return s.codec.ServiceResponse(req.Attributes, protocol.Success)
	}
}

func (s *Simulator) handleCardRequest(req *protocol.Request) ([]byte, error) {
	body := []*xmldoc.Element{
		xmldoc.NewElement("Terminal",
			xmldoc.Attr{Name: "TerminalID", Value: TerminalID},
			xmldoc.Attr{Name: "TerminalBatch", Value: TerminalBatch},
			xmldoc.Attr{Name: "STAN", Value: STAN},
		),
	}
	if req.Attributes.RequestType() == "CardPayment" {
		if s.print {
			s.printReceipt(req)
		}
		body = append(body, xmldoc.NewElement("Tender").Add(
			xmldoc.NewElement("TotalAmount", xmldoc.Attr{Name: "Currency", Value: Currency}).SetText(req.TotalAmount),
			xmldoc.NewElement("Authorization",
				xmldoc.Attr{Name: "AcquirerID", Value: AcquirerID},
				xmldoc.Attr{Name: "CardPAN", Value: CardPAN},
			),
		))
	}
	return s.codec.CardResponse(req.Attributes, protocol.Success, body...)
}

// printReceipt failures are logged only, the payment itself has succeeded.
func (s *Simulator) printReceipt(req *protocol.Request) {
	amount := req.TotalAmount
	if d, err := decimal.NewFromString(amount); err == nil {
		amount = protocol.FormatAmount(d)
	}
	lines := []protocol.LineSpec{
		{Type: "TextLine", Text: "CARD PAYMENT"},
		{Type: "TextLine", Text: fmt.Sprintf("%s %s", Currency, amount)},
		{Type: "TextLine", Text: fmt.Sprintf("PAN %s STAN %s", CardPAN, STAN)},
		{Type: "TextLine", Text: "APPROVED", Attributes: map[string]string{"CutPaper": "true"}},
	}
	resp, err := s.SendDeviceRequest("Output", protocol.OutputSpec{Device: protocol.Printer, Lines: lines})
	if err != nil {
		log.Warnf("simulator failed to print receipt: %v", err)
		return
	}
	log.Infof("receipt printed with result %s", resp.OverallResult())
}

// SendDeviceRequest pushes a device request to the POS and returns its parsed response.
func (s *Simulator) SendDeviceRequest(requestType string, outputs ...protocol.OutputSpec) (*protocol.DeviceResponse, error) {
	message, err := s.codec.DeviceRequest(requestType, outputs...)
	if err != nil {
		return nil, err
	}
	return s.SendRawDeviceRequest(message)
}

// SendRawDeviceRequest pushes a prepared device request, for example one read from a file.
func (s *Simulator) SendRawDeviceRequest(message []byte) (*protocol.DeviceResponse, error) {
	reply, err := s.conn.Request(message)
	if err != nil {
		return nil, err
	}
	return protocol.ParseDeviceResponse(reply)
}
