package terminal

import (
	"bytes"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/spirit-labs/opi/protocol"
)

// RequestTypeRepeatLastMessage asks for the last device response to be sent again.
const RequestTypeRepeatLastMessage = "RepeatLastMessage"

// replayCache keeps recent device responses keyed by WorkstationID/RequestID. A request is answered from it without
// running handlers only when its payload is identical to the one that produced the cached response.
type replayCache struct {
	cache *lru.Cache
	lock  sync.Mutex
	last  []byte
}

func newReplayCache(size int) (*replayCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &replayCache{cache: cache}, nil
}

type replayEntry struct {
	request  []byte
	response []byte
}

func replayKey(attrs protocol.Attributes) string {
	return attrs.WorkstationID() + "/" + attrs.RequestID()
}

func (r *replayCache) get(attrs protocol.Attributes, request []byte) ([]byte, bool) {
	v, ok := r.cache.Get(replayKey(attrs))
	if !ok {
		return nil, false
	}
	entry := v.(replayEntry)
	if !bytes.Equal(entry.request, request) {
		return nil, false
	}
	return entry.response, true
}

// put replaces any entry for the same request ID.
func (r *replayCache) put(attrs protocol.Attributes, request []byte, response []byte) {
	r.cache.Add(replayKey(attrs), replayEntry{request: bytes.Clone(request), response: response})
	r.lock.Lock()
	defer r.lock.Unlock()
	r.last = response
}

func (r *replayCache) lastResponse() ([]byte, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.last, r.last != nil
}
