package errors

import (
	"fmt"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	log "github.com/spirit-labs/opi/logger"
)

type ErrCode int

const (
	MissingXML ErrCode = iota + 1000
	InvalidXML
	InvalidMessage
	MissingTerminal
	ValidationError
	InvalidArgument
	InvalidFrame
)

const (
	Timeout ErrCode = iota + 2000
	ConnectionError
)

const (
	InvalidConfiguration ErrCode = 3000
	InternalError        ErrCode = 5000
)

var codeNames = map[ErrCode]string{
	MissingXML:           "missing xml",
	InvalidXML:           "invalid xml",
	InvalidMessage:       "invalid message",
	MissingTerminal:      "missing terminal",
	ValidationError:      "validation error",
	InvalidArgument:      "invalid argument",
	InvalidFrame:         "invalid frame",
	Timeout:              "timeout",
	ConnectionError:      "connection error",
	InvalidConfiguration: "invalid configuration",
	InternalError:        "internal error",
}

func (c ErrCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code %d", int(c))
}

// OpiError is the error type returned by every protocol operation. Callers switch on Code rather than on the message.
type OpiError struct {
	Code ErrCode
	Msg  string
}

func (o OpiError) Error() string {
	return o.Msg
}

func NewOpiErrorf(errorCode ErrCode, msgFormat string, args ...interface{}) OpiError {
	return NewOpiError(errorCode, fmt.Sprintf(msgFormat, args...))
}

func NewOpiError(errorCode ErrCode, msg string) OpiError {
	return OpiError{Code: errorCode, Msg: msg}
}

func NewInvalidConfigurationError(msg string) OpiError {
	return NewOpiErrorf(InvalidConfiguration, "invalid configuration: %s", msg)
}

func NewTimeoutError(msgFormat string, args ...interface{}) OpiError {
	return NewOpiErrorf(Timeout, msgFormat, args...)
}

func NewConnectionError(msgFormat string, args ...interface{}) OpiError {
	return NewOpiErrorf(ConnectionError, msgFormat, args...)
}

func NewValidationError(msg string) OpiError {
	return NewOpiError(ValidationError, msg)
}

func NewInternalError(err error) OpiError {
	// Only the reference goes back to the caller, the cause is in the log
	ref := fmt.Sprintf("opi-internal-err-reference-%s", uuid.New().String())
	log.Errorf("internal error with reference %s: %v", ref, err)
	return NewOpiErrorf(InternalError, "an internal error has occurred - please search logs for reference: %s", ref)
}

// CodeOf returns the code of the first OpiError in err's chain.
func CodeOf(err error) (ErrCode, bool) {
	var oerr OpiError
	if As(err, &oerr) {
		return oerr.Code, true
	}
	return 0, false
}

func IsOpiErrorWithCode(err error, code ErrCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func IsTimeout(err error) bool {
	return IsOpiErrorWithCode(err, Timeout)
}

func IsConnectionError(err error) bool {
	return IsOpiErrorWithCode(err, ConnectionError)
}

// IsParseError reports whether err came from decoding a payload, as opposed to moving it.
func IsParseError(err error) bool {
	c, ok := CodeOf(err)
	if !ok {
		return false
	}
	switch c {
	case MissingXML, InvalidXML, InvalidMessage, MissingTerminal:
		return true
	}
	return false
}

func New(msg string) error {
	return pkgerrors.New(msg)
}

func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

func WithStack(err error) error {
	return pkgerrors.WithStack(err)
}

func Wrap(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

func Is(err, target error) bool {
	return pkgerrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return pkgerrors.As(err, target)
}
