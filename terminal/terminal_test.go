package terminal

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spirit-labs/opi/conf"
	"github.com/spirit-labs/opi/errors"
	"github.com/spirit-labs/opi/protocol"
	"github.com/spirit-labs/opi/xmldoc"
	"github.com/stretchr/testify/require"
)

var testProtocolConfig = conf.ProtocolConfig{WorkstationID: "POS-1", ApplicationID: "opi-test"}

func newTestTerminal(t *testing.T, link Link, replaySize int) *Terminal {
	t.Helper()
	term, err := NewTerminalWithLink(link, testProtocolConfig, conf.TerminalConfig{ReplayCacheSize: replaySize})
	require.NoError(t, err)
	return term
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func succeed(protocol.OutputSpec) (protocol.Result, error) {
	return protocol.Success, nil
}

func TestCalculateOverallStatus(t *testing.T) {
	type testCase struct {
		results  []protocol.Result
		expected protocol.Result
	}
	cases := []testCase{
		{nil, protocol.Failure},
		{[]protocol.Result{}, protocol.Failure},
		{[]protocol.Result{protocol.Success}, protocol.Success},
		{[]protocol.Result{protocol.Busy}, protocol.Busy},
		{[]protocol.Result{protocol.DeviceUnavailable}, protocol.DeviceUnavailable},
		{[]protocol.Result{protocol.Success, protocol.Success}, protocol.Success},
		{[]protocol.Result{protocol.Success, protocol.Failure}, protocol.Failure},
		{[]protocol.Result{protocol.DeviceUnavailable, protocol.Success}, protocol.Failure},
		{[]protocol.Result{protocol.Busy, protocol.Busy}, protocol.Failure},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expected, CalculateOverallStatus(tc.results), "%v", tc.results)
	}
}

func TestProcessDeviceOutputs(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	require.NoError(t, term.RegisterDevice(protocol.Printer, HandlerFunc(succeed)))
	require.NoError(t, term.RegisterDevice(protocol.CashierDisplay, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		return "", errors.New("display is off")
	})))
	require.NoError(t, term.RegisterDevice(protocol.CustomerDisplay, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		panic("display exploded")
	})))
	require.NoError(t, term.RegisterDevice(protocol.Log, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		return "Fine", nil
	})))
	require.NoError(t, term.RegisterDevice(protocol.PinPad, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		return "", nil
	})))
	require.NoError(t, term.RegisterDevice(protocol.MSR, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		return protocol.Busy, nil
	})))

	results := term.ProcessDeviceOutputs([]protocol.OutputSpec{
		{Device: protocol.Printer},
		{Device: protocol.PrinterReceipt},
		{Device: protocol.CashierDisplay},
		{Device: protocol.CustomerDisplay},
		{Device: protocol.Log},
		{Device: protocol.PinPad},
		{Device: protocol.MSR},
		{Device: ""},
	})
	require.Equal(t, []protocol.Result{
		protocol.Success,
		protocol.DeviceUnavailable,
		protocol.Failure,
		protocol.Failure,
		protocol.Failure,
		protocol.Failure,
		protocol.Busy,
		protocol.ValidationError,
	}, results)
}

func TestRegisterDeviceRejectsBadArguments(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	err := term.RegisterDevice("", HandlerFunc(succeed))
	require.True(t, errors.IsOpiErrorWithCode(err, errors.InvalidArgument))
	err = term.RegisterDevice(protocol.Printer, nil)
	require.True(t, errors.IsOpiErrorWithCode(err, errors.InvalidArgument))
}

func TestRegisterDeviceReplacesHandler(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	require.NoError(t, term.RegisterDevice(protocol.Printer, HandlerFunc(succeed)))
	require.NoError(t, term.RegisterDevice(protocol.Printer, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		return protocol.Aborted, nil
	})))
	require.Equal(t, []protocol.Result{protocol.Aborted}, term.ProcessDeviceOutputs([]protocol.OutputSpec{{Device: protocol.Printer}}))
}

func TestHandleDeviceRequestPrinterAndUnregisteredReceipt(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	var printed []protocol.OutputSpec
	require.NoError(t, term.RegisterDevice(protocol.Printer, HandlerFunc(func(spec protocol.OutputSpec) (protocol.Result, error) {
		printed = append(printed, spec)
		return protocol.Success, nil
	})))

	b, err := term.HandleDeviceRequest(readFixture(t, "device_request_printer.xml"))
	require.NoError(t, err)
	resp, err := protocol.ParseDeviceResponse(b)
	require.NoError(t, err)
	require.Equal(t, protocol.Failure, resp.OverallResult())
	require.Equal(t, []protocol.OutputResult{
		{Device: protocol.Printer, Result: protocol.Success},
		{Device: protocol.PrinterReceipt, Result: protocol.DeviceUnavailable},
	}, resp.Outputs)
	require.Equal(t, "Output", resp.Attributes.RequestType())
	require.Equal(t, "2.3", resp.Attributes.RequestID())
	require.Equal(t, "T1", resp.Attributes[protocol.AttrTerminalID])
	require.Equal(t, "opi-test", resp.Attributes[protocol.AttrApplicationSender])
	_, ok := resp.Attributes.Value(protocol.AttrPOPID)
	require.False(t, ok)

	require.Len(t, printed, 1)
	require.Equal(t, []string{"Card payment", "EUR 12.50"}, []string{printed[0].Lines[0].Text, printed[0].Lines[1].Text})
}

func TestHandleDeviceRequestParseFailures(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	var calls atomic.Int64
	require.NoError(t, term.RegisterDevice(protocol.Printer, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		calls.Add(1)
		return protocol.Success, nil
	})))

	type testCase struct {
		raw      string
		expected protocol.Result
	}
	cases := []testCase{
		{"", protocol.ParsingError},
		{"<DeviceRequest RequestType=", protocol.ParsingError},
		{`<ServiceRequest RequestType="Output" RequestID="1"><Output OutDeviceTarget="Printer"/></ServiceRequest>`, protocol.FormatError},
		{`<DeviceRequest RequestID="1"><Output OutDeviceTarget="Printer"/></DeviceRequest>`, protocol.ValidationError},
		{`<DeviceRequest RequestType="Output"><Output OutDeviceTarget="Printer"/></DeviceRequest>`, protocol.ValidationError},
	}
	for _, tc := range cases {
		b, err := term.HandleDeviceRequest([]byte(tc.raw))
		require.NoError(t, err)
		resp, err := protocol.ParseDeviceResponse(b)
		require.NoError(t, err)
		require.Equal(t, tc.expected, resp.OverallResult(), tc.raw)
		require.Empty(t, resp.Outputs)
	}
	require.Equal(t, int64(0), calls.Load())
}

func TestHandleDeviceRequestAcceptsEmptyIdentifiers(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	var calls atomic.Int64
	require.NoError(t, term.RegisterDevice(protocol.Printer, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		calls.Add(1)
		return protocol.Success, nil
	})))
	b, err := term.HandleDeviceRequest([]byte(`<DeviceRequest RequestType="" RequestID=""><Output OutDeviceTarget="Printer"/></DeviceRequest>`))
	require.NoError(t, err)
	resp, err := protocol.ParseDeviceResponse(b)
	require.NoError(t, err)
	require.Equal(t, protocol.Success, resp.OverallResult())
	require.Equal(t, []protocol.OutputResult{{Device: protocol.Printer, Result: protocol.Success}}, resp.Outputs)
	v, ok := resp.Attributes.Value(protocol.AttrRequestType)
	require.True(t, ok)
	require.Equal(t, "", v)
	require.Equal(t, int64(1), calls.Load())
}

func TestHandleDeviceRequestProcessesAtMostTwoOutputs(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	var calls atomic.Int64
	require.NoError(t, term.RegisterDevice(protocol.Printer, HandlerFunc(func(protocol.OutputSpec) (protocol.Result, error) {
		calls.Add(1)
		return protocol.Success, nil
	})))
	raw := `<DeviceRequest RequestType="Output" RequestID="5">` +
		`<Output OutDeviceTarget="Printer"/><Output OutDeviceTarget="Printer"/><Output OutDeviceTarget="Printer"/>` +
		`</DeviceRequest>`
	b, err := term.HandleDeviceRequest([]byte(raw))
	require.NoError(t, err)
	resp, err := protocol.ParseDeviceResponse(b)
	require.NoError(t, err)
	require.Equal(t, protocol.Success, resp.OverallResult())
	require.Len(t, resp.Outputs, 2)
	require.Equal(t, int64(2), calls.Load())
}

func TestHandleDeviceRequestWithoutOutputs(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	b, err := term.HandleDeviceRequest([]byte(`<DeviceRequest RequestType="Output" RequestID="6"/>`))
	require.NoError(t, err)
	resp, err := protocol.ParseDeviceResponse(b)
	require.NoError(t, err)
	require.Equal(t, protocol.Failure, resp.OverallResult())
}

func TestLoginLogoff(t *testing.T) {
	ok := []byte(`<ServiceResponse RequestType="Login" RequestID="1" OverallResult="Success"/>`)
	failed := []byte(`<ServiceResponse RequestType="Logoff" RequestID="2" OverallResult="Failure"/>`)
	link := &fakeLink{replies: [][]byte{ok, failed}}
	term := newTestTerminal(t, link, 0)

	success, err := term.Login()
	require.NoError(t, err)
	require.True(t, success)
	success, err = term.Logoff()
	require.NoError(t, err)
	require.False(t, success)

	require.Len(t, link.sent, 2)
	for i, requestType := range []string{"Login", "Logoff"} {
		req, err := protocol.ParseServiceRequest(link.sent[i])
		require.NoError(t, err)
		require.Equal(t, requestType, req.Attributes.RequestType())
		require.Equal(t, "POS-1", req.Attributes.WorkstationID())
		require.NotEmpty(t, req.POSTimeStamp)
	}
}

func TestLoginStructuralError(t *testing.T) {
	link := &fakeLink{replies: [][]byte{[]byte(`<Something/>`)}}
	term := newTestTerminal(t, link, 0)
	_, err := term.Login()
	require.True(t, errors.IsOpiErrorWithCode(err, errors.InvalidMessage))
}

func TestTransportErrorsPropagate(t *testing.T) {
	link := &fakeLink{err: errors.NewTimeoutError("no response")}
	term := newTestTerminal(t, link, 0)
	_, err := term.Login()
	require.True(t, errors.IsTimeout(err))
	_, err = term.CardPayment(decimal.NewNullDecimal(decimal.NewFromInt(5)), "")
	require.True(t, errors.IsTimeout(err))

	link.err = errors.NewConnectionError("refused")
	_, err = term.Reconcile()
	require.True(t, errors.IsConnectionError(err))
}

func TestCardPaymentValidatesAmountBeforeIO(t *testing.T) {
	link := &fakeLink{}
	term := newTestTerminal(t, link, 0)
	for _, amount := range []decimal.NullDecimal{
		decimal.NewNullDecimal(decimal.Zero),
		decimal.NewNullDecimal(decimal.NewFromInt(-5)),
		{},
	} {
		_, err := term.CardPayment(amount, "")
		require.Error(t, err)
		require.True(t, errors.IsOpiErrorWithCode(err, errors.ValidationError))
	}
	require.Equal(t, 0, link.sentCount())
}

func TestCardPayment(t *testing.T) {
	link := &fakeLink{replies: [][]byte{readFixture(t, "card_response.xml")}}
	term := newTestTerminal(t, link, 0)
	resp, err := term.CardPayment(decimal.NewNullDecimal(decimal.RequireFromString("12.5")), "TX-42")
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.True(t, decimal.RequireFromString("12.50").Equal(resp.Amount))
	require.Equal(t, "724", resp.Terminal["STAN"])
	require.Equal(t, "BUYPASS", resp.Tender.Authorization["AcquirerID"])

	req, err := protocol.ParseCardRequest(link.sent[0])
	require.NoError(t, err)
	require.Equal(t, RequestTypeCardPayment, req.Attributes.RequestType())
	require.Equal(t, "12.50", req.TotalAmount)
	require.Equal(t, "TX-42", req.TransactionNumber)
}

func TestCardPaymentWithoutTransactionNumber(t *testing.T) {
	link := &fakeLink{replies: [][]byte{readFixture(t, "card_response.xml")}}
	term := newTestTerminal(t, link, 0)
	_, err := term.CardPayment(decimal.NewNullDecimal(decimal.NewFromInt(3)), "")
	require.NoError(t, err)
	root, err := xmldoc.Parse(link.sent[0])
	require.NoError(t, err)
	require.Nil(t, root.FindFirst("TransactionNumber"))
	require.Equal(t, "3.00", root.FindFirst("TotalAmount").Text())
}

func TestCardPaymentMissingTerminal(t *testing.T) {
	reply := []byte(`<CardServiceResponse RequestType="CardPayment" RequestID="1" OverallResult="Success"/>`)
	term := newTestTerminal(t, &fakeLink{replies: [][]byte{reply}}, 0)
	_, err := term.CardPayment(decimal.NewNullDecimal(decimal.NewFromInt(1)), "")
	require.True(t, errors.IsOpiErrorWithCode(err, errors.MissingTerminal))
}

func TestReconcileAndDiagnosisRequestTypes(t *testing.T) {
	ok := []byte(`<ServiceResponse OverallResult="Success"/>`)
	link := &fakeLink{replies: [][]byte{ok, ok}}
	term := newTestTerminal(t, link, 0)
	_, err := term.Reconcile()
	require.NoError(t, err)
	_, err = term.Diagnosis()
	require.NoError(t, err)
	for i, requestType := range []string{RequestTypeReconcile, RequestTypeDiagnosis} {
		req, err := protocol.ParseServiceRequest(link.sent[i])
		require.NoError(t, err)
		require.Equal(t, requestType, req.Attributes.RequestType())
	}
}

func TestNewTerminalValidatesConfig(t *testing.T) {
	_, err := NewTerminalWithLink(&fakeLink{}, conf.ProtocolConfig{}, conf.TerminalConfig{})
	require.True(t, errors.IsOpiErrorWithCode(err, errors.InvalidConfiguration))
	_, err = NewTerminalWithLink(&fakeLink{}, testProtocolConfig, conf.TerminalConfig{ReplayCacheSize: -1})
	require.True(t, errors.IsOpiErrorWithCode(err, errors.InvalidConfiguration))
}

func TestBindWithoutListenerSupport(t *testing.T) {
	term := newTestTerminal(t, &fakeLink{}, 0)
	require.NoError(t, term.Bind())
}
