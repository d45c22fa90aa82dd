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

package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/spirit-labs/opi/conf"
	"github.com/spirit-labs/opi/errors"
	log "github.com/spirit-labs/opi/logger"
	"github.com/spirit-labs/opi/metrics"
	"github.com/spirit-labs/opi/protocol"
	"github.com/spirit-labs/opi/transport"
	"github.com/spirit-labs/opi/xmldoc"
)

// MaxOutputs is the number of Output elements of a device request that are processed, any further ones are ignored.
const MaxOutputs = 2

const (
	RequestTypeLogin       = "Login"
	RequestTypeLogoff      = "Logoff"
	RequestTypeReconcile   = "ReconciliationWithClosure"
	RequestTypeDiagnosis   = "Diagnosis"
	RequestTypeCardPayment = "CardPayment"
)

// Link is the part of transport.Connection the terminal uses.
type Link interface {
	Request(message []byte) ([]byte, error)
	Listen(onMessage transport.MessageHandler) error
	Close() error
}

// Terminal is the POS side of a payment terminal link. It sends service and card requests to the EPS and dispatches
// the device requests the EPS sends back to the registered device handlers.
type Terminal struct {
	link    Link
	codec   *protocol.Codec
	lock    sync.RWMutex
	devices map[protocol.Device]Handler
	replay  *replayCache
}

func NewTerminal(config conf.Config) (*Terminal, error) {
	conn, err := transport.NewConnection(config.Connection)
	if err != nil {
		return nil, err
	}
	return NewTerminalWithLink(conn, config.Protocol, config.Terminal)
}

func NewTerminalWithLink(link Link, protoConfig conf.ProtocolConfig, termConfig conf.TerminalConfig) (*Terminal, error) {
	if err := protoConfig.Validate(); err != nil {
		return nil, err
	}
	if err := termConfig.Validate(); err != nil {
		return nil, err
	}
	ctx, err := protocol.NewContext(protoConfig.WorkstationID, protoConfig.ApplicationID)
	if err != nil {
		return nil, err
	}
	t := &Terminal{
		link:    link,
		codec:   protocol.NewCodec(ctx),
		devices: map[protocol.Device]Handler{},
	}
	if termConfig.ReplayCacheSize > 0 {
		t.replay, err = newReplayCache(termConfig.ReplayCacheSize)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// RegisterDevice installs the handler for a device, replacing any previous one.
func (t *Terminal) RegisterDevice(device protocol.Device, handler Handler) error {
	if strings.TrimSpace(string(device)) == "" {
		return errors.NewOpiError(errors.InvalidArgument, "invalid device name")
	}
	if handler == nil {
		return errors.NewOpiErrorf(errors.InvalidArgument, "invalid handler for device %s", device)
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.devices[device] = handler
	return nil
}

func (t *Terminal) handler(device protocol.Device) Handler {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.devices[device]
}

type binder interface {
	Bind() error
}

// Bind starts listening for device requests ahead of Listen when the link supports it.
func (t *Terminal) Bind() error {
	if b, ok := t.link.(binder); ok {
		return b.Bind()
	}
	return nil
}

// Listen serves device requests until Close is called.
func (t *Terminal) Listen() error {
	return t.link.Listen(t.HandleDeviceRequest)
}

func (t *Terminal) Close() error {
	return t.link.Close()
}

// HandleDeviceRequest turns one device request into its device response. Failures are reported in the response
// rather than returned, an error is returned only if the response itself cannot be built.
func (t *Terminal) HandleDeviceRequest(raw []byte) ([]byte, error) {
	req, err := protocol.ParseDeviceRequest(raw)
	if err != nil {
		result := protocol.FormatError
		if errors.IsOpiErrorWithCode(err, errors.MissingXML) || errors.IsOpiErrorWithCode(err, errors.InvalidXML) {
			result = protocol.ParsingError
		}
		log.Warnf("unparseable device request, responding %s: %v", result, err)
		return t.codec.DeviceResponse(nil, result)
	}
	_, hasType := req.Attributes.Value(protocol.AttrRequestType)
	_, hasID := req.Attributes.Value(protocol.AttrRequestID)
	if !hasType || !hasID {
		log.Warnf("device request without RequestType or RequestID, responding %s", protocol.ValidationError)
		return t.codec.DeviceResponse(req.Attributes, protocol.ValidationError)
	}
	if t.replay != nil {
		if req.Attributes.RequestType() == RequestTypeRepeatLastMessage {
			if last, ok := t.replay.lastResponse(); ok {
				log.Debugf("repeating last device response")
				return last, nil
			}
		} else if cached, ok := t.replay.get(req.Attributes, raw); ok {
			log.Debugf("device request %s already answered, replaying response", req.Attributes.RequestID())
			return cached, nil
		}
	}
	outputs := req.Outputs
	if len(outputs) > MaxOutputs {
		log.Warnf("device request %s has %d outputs, ignoring all but the first %d", req.Attributes.RequestID(),
			len(outputs), MaxOutputs)
		outputs = outputs[:MaxOutputs]
	}
	results := t.ProcessDeviceOutputs(outputs)
	overall := CalculateOverallStatus(results)
	body := make([]*xmldoc.Element, len(outputs))
	for i, out := range outputs {
		body[i] = protocol.OutputResultElement(out.Device, results[i])
	}
	response, err := t.codec.DeviceResponse(req.Attributes, overall, body...)
	if err != nil {
		return nil, err
	}
	if t.replay != nil {
		t.replay.put(req.Attributes, raw, response)
	}
	return response, nil
}

// ProcessDeviceOutputs runs the handler of each output in order and returns one result per output.
func (t *Terminal) ProcessDeviceOutputs(outputs []protocol.OutputSpec) []protocol.Result {
	results := make([]protocol.Result, len(outputs))
	for i, out := range outputs {
		results[i] = t.processOutput(out)
		label := string(out.Device)
		if !out.Device.Known() {
			label = "other"
		}
		metrics.DeviceOutput(label, string(results[i]))
	}
	return results
}

func (t *Terminal) processOutput(out protocol.OutputSpec) protocol.Result {
	if out.Device == "" {
		return protocol.ValidationError
	}
	handler := t.handler(out.Device)
	if handler == nil {
		return protocol.DeviceUnavailable
	}
	result, err := callHandler(handler, out)
	if err != nil {
		log.Warnf("device %s failed: %v", out.Device, err)
		return protocol.Failure
	}
	if !result.Valid() {
		log.Warnf("device %s returned unknown result %q", out.Device, result)
		return protocol.Failure
	}
	return result
}

func callHandler(handler Handler, out protocol.OutputSpec) (result protocol.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Output(out)
}

// CalculateOverallStatus combines per-output results. No outputs is a Failure, a single output's result is the
// overall result, and two outputs succeed only if both do.
func CalculateOverallStatus(results []protocol.Result) protocol.Result {
	switch len(results) {
	case 0:
		return protocol.Failure
	case 1:
		return results[0]
	default:
		if results[0] == protocol.Success && results[1] == protocol.Success {
			return protocol.Success
		}
		return protocol.Failure
	}
}

// Service sends a ServiceRequest of the given type stamped with the current time.
func (t *Terminal) Service(requestType string) (*protocol.ServiceResponse, error) {
	message, err := t.codec.ServiceRequest(requestType, t.codec.POSData(""))
	if err != nil {
		return nil, err
	}
	reply, err := t.link.Request(message)
	if err != nil {
		return nil, err
	}
	resp, err := protocol.ParseServiceResponse(reply)
	if err != nil {
		return nil, err
	}
	metrics.RequestCompleted(requestType, resp.Success)
	log.Debugf("%s completed with %s", requestType, resp.OverallResult())
	return resp, nil
}

// Login logs the workstation on to the EPS. A second login without a logoff is accepted.
func (t *Terminal) Login() (bool, error) {
	resp, err := t.Service(RequestTypeLogin)
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (t *Terminal) Logoff() (bool, error) {
	resp, err := t.Service(RequestTypeLogoff)
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}

// Reconcile closes the current batch on the EPS.
func (t *Terminal) Reconcile() (*protocol.ServiceResponse, error) {
	return t.Service(RequestTypeReconcile)
}

func (t *Terminal) Diagnosis() (*protocol.ServiceResponse, error) {
	return t.Service(RequestTypeDiagnosis)
}

// CardPayment asks the EPS to take a card payment. amount must be present and positive, it is sent with two
// decimals. transactionNumber is optional.
func (t *Terminal) CardPayment(amount decimal.NullDecimal, transactionNumber string) (*protocol.CardServiceResponse, error) {
	if !amount.Valid {
		return nil, errors.NewValidationError("amount missing")
	}
	if !amount.Decimal.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("amount must be > 0, got %s", amount.Decimal.String()))
	}
	message, err := t.codec.CardRequest(RequestTypeCardPayment, t.codec.POSData(transactionNumber),
		xmldoc.NewElement("TotalAmount").SetText(protocol.FormatAmount(amount.Decimal)))
	if err != nil {
		return nil, err
	}
	reply, err := t.link.Request(message)
	if err != nil {
		return nil, err
	}
	resp, err := protocol.ParseCardResponse(reply)
	if err != nil {
		return nil, err
	}
	metrics.RequestCompleted(RequestTypeCardPayment, resp.Success)
	return resp, nil
}
