package protocol

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spirit-labs/opi/errors"
)

// TimestampFormat is ISO 8601 with millisecond precision and the local offset, Z for UTC.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Context identifies this side of the conversation and hands out request IDs. Request IDs have the form
// "<epoch seconds at creation>_<counter>" and the counter is never reused, so IDs are unique and increasing for the
// life of the process.
type Context struct {
	WorkstationID string
	ApplicationID string
	prefix        int64
	counter       atomic.Uint64
	clock         func() time.Time
}

func NewContext(workstationID string, applicationID string) (*Context, error) {
	if strings.TrimSpace(workstationID) == "" {
		return nil, errors.NewOpiError(errors.InvalidArgument, "workstation id required")
	}
	if strings.TrimSpace(applicationID) == "" {
		return nil, errors.NewOpiError(errors.InvalidArgument, "application id required")
	}
	return &Context{
		WorkstationID: workstationID,
		ApplicationID: applicationID,
		prefix:        time.Now().Unix(),
		clock:         time.Now,
	}, nil
}

func (c *Context) NextRequestID() string {
	return fmt.Sprintf("%d_%d", c.prefix, c.counter.Add(1))
}

func (c *Context) Timestamp() string {
	return FormatTimestamp(c.clock())
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampFormat)
}
