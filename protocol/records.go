package protocol

import (
	"github.com/shopspring/decimal"
)

const (
	AttrRequestType       = "RequestType"
	AttrRequestID         = "RequestID"
	AttrApplicationSender = "ApplicationSender"
	AttrWorkstationID     = "WorkstationID"
	AttrTerminalID        = "TerminalID"
	AttrSequenceID        = "SequenceID"
	AttrPOPID             = "POPID"
	AttrOverallResult     = "OverallResult"
	AttrOutDeviceTarget   = "OutDeviceTarget"
	AttrOutResult         = "OutResult"
)

// Attributes holds the attributes of a message's root element.
type Attributes map[string]string

func (a Attributes) Value(name string) (string, bool) {
	v, ok := a[name]
	return v, ok
}

func (a Attributes) RequestType() string {
	return a[AttrRequestType]
}

func (a Attributes) RequestID() string {
	return a[AttrRequestID]
}

func (a Attributes) WorkstationID() string {
	return a[AttrWorkstationID]
}

// LineSpec is one child element of an Output, for example a TextLine.
type LineSpec struct {
	Type       string
	Text       string
	Attributes map[string]string
}

// OutputSpec is one Output element of a device request. Device is empty when OutDeviceTarget is absent.
type OutputSpec struct {
	Device     Device
	Attributes map[string]string
	Lines      []LineSpec
}

type DeviceRequest struct {
	Attributes Attributes
	Outputs    []OutputSpec
}

type ServiceResponse struct {
	Attributes Attributes
	Success    bool
}

func (s *ServiceResponse) OverallResult() Result {
	return Result(s.Attributes[AttrOverallResult])
}

type TotalAmount struct {
	// Value is zero when the text is missing or not a number.
	Value      decimal.Decimal
	Text       string
	Attributes map[string]string
}

type Tender struct {
	TotalAmount   TotalAmount
	Authorization map[string]string
}

type CardServiceResponse struct {
	Attributes Attributes
	Success    bool
	Amount     decimal.Decimal
	Terminal   map[string]string
	Tender     Tender
}

func (c *CardServiceResponse) OverallResult() Result {
	return Result(c.Attributes[AttrOverallResult])
}

// Request is a ServiceRequest or CardServiceRequest as seen by the EPS.
type Request struct {
	Kind              string
	Attributes        Attributes
	POSTimeStamp      string
	TransactionNumber string
	// TotalAmount is the raw amount text of a card request, empty if absent.
	TotalAmount string
}

type OutputResult struct {
	Device Device
	Result Result
}

type DeviceResponse struct {
	Attributes Attributes
	Outputs    []OutputResult
}

func (d *DeviceResponse) OverallResult() Result {
	return Result(d.Attributes[AttrOverallResult])
}
