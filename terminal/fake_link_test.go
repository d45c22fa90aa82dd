package terminal

import (
	"sync"

	"github.com/spirit-labs/opi/transport"
)

// fakeLink records outbound messages and answers them from a queue.
type fakeLink struct {
	lock    sync.Mutex
	sent    [][]byte
	replies [][]byte
	err     error
}

func (f *fakeLink) Request(message []byte) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.sent = append(f.sent, message)
	if f.err != nil {
		return nil, f.err
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeLink) Listen(transport.MessageHandler) error {
	return nil
}

func (f *fakeLink) Close() error {
	return nil
}

func (f *fakeLink) sentCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.sent)
}
