package protocol

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spirit-labs/opi/errors"
	"github.com/spirit-labs/opi/xmldoc"
)

// ParseServiceResponse fails with MissingXML or InvalidXML when data is not a document and with InvalidMessage when
// it holds no ServiceResponse.
func ParseServiceResponse(data []byte) (*ServiceResponse, error) {
	node, err := findRoot(data, RootServiceResponse, "invalid service response")
	if err != nil {
		return nil, err
	}
	attrs := Attributes(node.Attributes())
	return &ServiceResponse{
		Attributes: attrs,
		Success:    attrs[AttrOverallResult] == string(Success),
	}, nil
}

// ParseCardResponse additionally fails with MissingTerminal when the response has no Terminal element, whatever its
// OverallResult.
func ParseCardResponse(data []byte) (*CardServiceResponse, error) {
	node, err := findRoot(data, RootCardServiceResponse, "invalid card service response")
	if err != nil {
		return nil, err
	}
	terminal := findDescendant(node, "Terminal")
	if terminal == nil {
		return nil, errors.NewOpiError(errors.MissingTerminal, "invalid card service response (Terminal missing)")
	}
	attrs := Attributes(node.Attributes())
	resp := &CardServiceResponse{
		Attributes: attrs,
		Success:    attrs[AttrOverallResult] == string(Success),
		Amount:     decimal.Zero,
		Terminal:   terminal.Attributes(),
		Tender: Tender{
			TotalAmount:   TotalAmount{Value: decimal.Zero, Attributes: map[string]string{}},
			Authorization: map[string]string{},
		},
	}
	if tender := findDescendant(node, "Tender"); tender != nil {
		if amount := findDescendant(tender, "TotalAmount"); amount != nil {
			text := amount.Text()
			resp.Tender.TotalAmount = TotalAmount{
				Value:      parseDecimal(text),
				Text:       text,
				Attributes: amount.Attributes(),
			}
			resp.Amount = resp.Tender.TotalAmount.Value
		}
		if auth := findDescendant(tender, "Authorization"); auth != nil {
			resp.Tender.Authorization = auth.Attributes()
		}
	}
	return resp, nil
}

// ParseDeviceRequest collects the Output children of the DeviceRequest in document order. It does not check that
// RequestType and RequestID are present, that is up to the dispatcher.
func ParseDeviceRequest(data []byte) (*DeviceRequest, error) {
	node, err := findRoot(data, RootDeviceRequest, "invalid device request")
	if err != nil {
		return nil, err
	}
	req := &DeviceRequest{Attributes: Attributes(node.Attributes())}
	for _, out := range node.ChildrenNamed("Output") {
		device, _ := out.Attr(AttrOutDeviceTarget)
		spec := OutputSpec{
			Device:     Device(device),
			Attributes: out.Attributes(),
		}
		for _, line := range out.Children {
			spec.Lines = append(spec.Lines, LineSpec{
				Type:       line.Name,
				Text:       line.Text(),
				Attributes: line.Attributes(),
			})
		}
		req.Outputs = append(req.Outputs, spec)
	}
	return req, nil
}

func ParseDeviceResponse(data []byte) (*DeviceResponse, error) {
	node, err := findRoot(data, RootDeviceResponse, "invalid device response")
	if err != nil {
		return nil, err
	}
	resp := &DeviceResponse{Attributes: Attributes(node.Attributes())}
	for _, out := range node.ChildrenNamed("Output") {
		device, _ := out.Attr(AttrOutDeviceTarget)
		result, _ := out.Attr(AttrOutResult)
		resp.Outputs = append(resp.Outputs, OutputResult{Device: Device(device), Result: Result(result)})
	}
	return resp, nil
}

func ParseServiceRequest(data []byte) (*Request, error) {
	node, err := findRoot(data, RootServiceRequest, "invalid service request")
	if err != nil {
		return nil, err
	}
	return newRequest(node), nil
}

func ParseCardRequest(data []byte) (*Request, error) {
	node, err := findRoot(data, RootCardServiceRequest, "invalid card service request")
	if err != nil {
		return nil, err
	}
	return newRequest(node), nil
}

// ParseRequest accepts either kind of POS request, Kind tells them apart.
func ParseRequest(data []byte) (*Request, error) {
	root, err := xmldoc.Parse(data)
	if err != nil {
		return nil, err
	}
	switch root.Name {
	case RootServiceRequest, RootCardServiceRequest:
		return newRequest(root), nil
	}
	return nil, errors.NewOpiErrorf(errors.InvalidMessage, "invalid request: unexpected root element %s", root.Name)
}

func newRequest(node *xmldoc.Element) *Request {
	req := &Request{
		Kind:       node.Name,
		Attributes: Attributes(node.Attributes()),
	}
	if ts := findDescendant(node, "POSTimeStamp"); ts != nil {
		req.POSTimeStamp = ts.Text()
	}
	if txn := findDescendant(node, "TransactionNumber"); txn != nil {
		req.TransactionNumber = txn.Text()
	}
	if amount := findDescendant(node, "TotalAmount"); amount != nil {
		req.TotalAmount = strings.TrimSpace(amount.Text())
	}
	return req
}

func findRoot(data []byte, name string, msg string) (*xmldoc.Element, error) {
	doc, err := xmldoc.Parse(data)
	if err != nil {
		return nil, err
	}
	node := doc.FindFirst(name)
	if node == nil {
		return nil, errors.NewOpiError(errors.InvalidMessage, msg)
	}
	return node, nil
}

// findDescendant is FindFirst excluding node itself.
func findDescendant(node *xmldoc.Element, name string) *xmldoc.Element {
	for _, child := range node.Children {
		if found := child.FindFirst(name); found != nil {
			return found
		}
	}
	return nil
}

func parseDecimal(text string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
