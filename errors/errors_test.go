package errors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeSurvivesWrapping(t *testing.T) {
	err := WithStack(NewTimeoutError("no response after %s", "1s"))
	err = Wrap(err, "login")
	require.True(t, IsTimeout(err))
	require.False(t, IsConnectionError(err))
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, Timeout, code)
	require.Equal(t, "login: no response after 1s", err.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	_, ok := CodeOf(New("plain"))
	require.False(t, ok)
	require.False(t, IsParseError(New("plain")))
}

func TestIsParseError(t *testing.T) {
	for _, code := range []ErrCode{MissingXML, InvalidXML, InvalidMessage, MissingTerminal} {
		require.True(t, IsParseError(NewOpiError(code, "x")), code.String())
	}
	for _, code := range []ErrCode{ValidationError, Timeout, ConnectionError, InvalidFrame} {
		require.False(t, IsParseError(NewOpiError(code, "x")), code.String())
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	err := NewInternalError(New("secret detail"))
	require.Equal(t, InternalError, err.Code)
	require.False(t, strings.Contains(err.Error(), "secret detail"))
	require.True(t, strings.Contains(err.Error(), "opi-internal-err-reference-"))
}

func TestErrCodeString(t *testing.T) {
	require.Equal(t, "missing terminal", MissingTerminal.String())
	require.Equal(t, "error code 42", ErrCode(42).String())
}
