package devices

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spirit-labs/opi/errors"
	"github.com/spirit-labs/opi/protocol"
)

// Publisher is the part of a NATS connection the journal needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type JournalEntry struct {
	Device    string    `json:"device"`
	Timestamp time.Time `json:"timestamp"`
	Lines     []string  `json:"lines"`
}

// Journal publishes each output it receives as one JournalEntry.
type Journal struct {
	publisher Publisher
	subject   string
	closer    func()
	clock     func() time.Time
}

func NewJournal(publisher Publisher, subject string) *Journal {
	return &Journal{publisher: publisher, subject: subject, clock: time.Now}
}

// ConnectNATSJournal connects to a NATS server and returns a journal publishing on subject.
func ConnectNATSJournal(url string, subject string) (*Journal, error) {
	nc, err := nats.Connect(url, nats.Name("opi-journal"))
	if err != nil {
		return nil, errors.NewConnectionError("failed to connect to NATS at %s: %v", url, err)
	}
	j := NewJournal(nc, subject)
	j.closer = nc.Close
	return j, nil
}

func (j *Journal) Output(spec protocol.OutputSpec) (protocol.Result, error) {
	entry := JournalEntry{
		Device:    string(spec.Device),
		Timestamp: j.clock(),
		Lines:     make([]string, 0, len(spec.Lines)),
	}
	for _, line := range spec.Lines {
		entry.Lines = append(entry.Lines, line.Text)
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return protocol.Failure, errors.WithStack(err)
	}
	if err := j.publisher.Publish(j.subject, data); err != nil {
		return protocol.Failure, errors.Wrapf(err, "failed to publish journal entry to %s", j.subject)
	}
	return protocol.Success, nil
}

func (j *Journal) Close() {
	if j.closer != nil {
		j.closer()
	}
}
