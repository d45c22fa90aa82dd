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

package protocol

import (
	"github.com/shopspring/decimal"
	"github.com/spirit-labs/opi/xmldoc"
)

const (
	RootServiceRequest      = "ServiceRequest"
	RootServiceResponse     = "ServiceResponse"
	RootCardServiceRequest  = "CardServiceRequest"
	RootCardServiceResponse = "CardServiceResponse"
	RootDeviceRequest       = "DeviceRequest"
	RootDeviceResponse      = "DeviceResponse"
)

// echoedIfPresent are copied from a request to its response only when the request carried them.
var echoedIfPresent = []string{AttrTerminalID, AttrSequenceID, AttrPOPID}

// Codec builds the protocol's XML messages for one Context.
type Codec struct {
	ctx *Context
}

func NewCodec(ctx *Context) *Codec {
	return &Codec{ctx: ctx}
}

func (c *Codec) Context() *Context {
	return c.ctx
}

func (c *Codec) ServiceRequest(requestType string, body ...*xmldoc.Element) ([]byte, error) {
	return xmldoc.Marshal(c.request(RootServiceRequest, requestType, body))
}

func (c *Codec) CardRequest(requestType string, body ...*xmldoc.Element) ([]byte, error) {
	return xmldoc.Marshal(c.request(RootCardServiceRequest, requestType, body))
}

// DeviceRequest builds a device request carrying one Output per spec, as the EPS sends them.
func (c *Codec) DeviceRequest(requestType string, outputs ...OutputSpec) ([]byte, error) {
	root := c.request(RootDeviceRequest, requestType, nil)
	for _, out := range outputs {
		el := xmldoc.NewElement("Output")
		if out.Device != "" {
			el.SetAttr(AttrOutDeviceTarget, string(out.Device))
		}
		for _, name := range sortedKeys(out.Attributes) {
			el.SetAttr(name, out.Attributes[name])
		}
		for _, line := range out.Lines {
			lineEl := xmldoc.NewElement(line.Type).SetText(line.Text)
			for _, name := range sortedKeys(line.Attributes) {
				lineEl.SetAttr(name, line.Attributes[name])
			}
			el.Add(lineEl)
		}
		root.Add(el)
	}
	return xmldoc.Marshal(root)
}

func (c *Codec) request(rootName string, requestType string, body []*xmldoc.Element) *xmldoc.Element {
	return xmldoc.NewElement(rootName,
		xmldoc.Attr{Name: AttrRequestType, Value: requestType},
		xmldoc.Attr{Name: AttrApplicationSender, Value: c.ctx.ApplicationID},
		xmldoc.Attr{Name: AttrWorkstationID, Value: c.ctx.WorkstationID},
		xmldoc.Attr{Name: AttrRequestID, Value: c.ctx.NextRequestID()},
	).Add(body...)
}

func (c *Codec) ServiceResponse(original Attributes, overallResult Result, body ...*xmldoc.Element) ([]byte, error) {
	return xmldoc.Marshal(c.response(RootServiceResponse, original, overallResult, body))
}

func (c *Codec) CardResponse(original Attributes, overallResult Result, body ...*xmldoc.Element) ([]byte, error) {
	return xmldoc.Marshal(c.response(RootCardServiceResponse, original, overallResult, body))
}

func (c *Codec) DeviceResponse(original Attributes, overallResult Result, body ...*xmldoc.Element) ([]byte, error) {
	return xmldoc.Marshal(c.response(RootDeviceResponse, original, overallResult, body))
}

func (c *Codec) response(rootName string, original Attributes, overallResult Result, body []*xmldoc.Element) *xmldoc.Element {
	root := xmldoc.NewElement(rootName)
	// a request that failed to parse has nothing to echo
	if v, ok := original.Value(AttrRequestType); ok {
		root.SetAttr(AttrRequestType, v)
	}
	root.SetAttr(AttrApplicationSender, c.ctx.ApplicationID)
	root.SetAttr(AttrWorkstationID, c.ctx.WorkstationID)
	if v, ok := original.Value(AttrRequestID); ok {
		root.SetAttr(AttrRequestID, v)
	}
	for _, name := range echoedIfPresent {
		if v, ok := original.Value(name); ok {
			root.SetAttr(name, v)
		}
	}
	root.SetAttr(AttrOverallResult, string(overallResult))
	return root.Add(body...)
}

// POSData is the POSdata element stamped with the current time. transactionNumber is omitted when empty.
func (c *Codec) POSData(transactionNumber string) *xmldoc.Element {
	el := xmldoc.NewElement("POSdata").Add(xmldoc.NewElement("POSTimeStamp").SetText(c.ctx.Timestamp()))
	if transactionNumber != "" {
		el.Add(xmldoc.NewElement("TransactionNumber").SetText(transactionNumber))
	}
	return el
}

// OutputResultElement is the Output element of a device response.
func OutputResultElement(device Device, result Result) *xmldoc.Element {
	return xmldoc.NewElement("Output",
		xmldoc.Attr{Name: AttrOutDeviceTarget, Value: string(device)},
		xmldoc.Attr{Name: AttrOutResult, Value: string(result)},
	)
}

// FormatAmount renders an amount with exactly two decimals, as requests carry it.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
