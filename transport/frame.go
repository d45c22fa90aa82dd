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

package transport

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/spirit-labs/opi/errors"
)

// FrameHeaderSize is the size of the big-endian length that precedes every payload.
const FrameHeaderSize = 4

// SendFrame writes payload preceded by its length in a single write.
func SendFrame(conn net.Conn, payload []byte) error {
	buff := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buff, uint32(len(payload)))
	copy(buff[FrameHeaderSize:], payload)
	if _, err := conn.Write(buff); err != nil {
		return convertNetworkError(err, "sending frame")
	}
	return nil
}

// ReadFull reads exactly n bytes, accumulating partial reads, and fails with a Timeout error once deadline has
// passed. The deadline is absolute so it bounds the whole read, not each call to Read.
func ReadFull(conn net.Conn, deadline time.Time, n int) ([]byte, error) {
	buff := make([]byte, n)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, convertNetworkError(err, "setting read deadline")
	}
	read := 0
	for read < n {
		if time.Until(deadline) <= 0 {
			return nil, errors.NewTimeoutError("timed out after reading %d of %d bytes", read, n)
		}
		r, err := conn.Read(buff[read:])
		read += r
		if err != nil {
			if read == n {
				break
			}
			if isTimeout(err) {
				return nil, errors.NewTimeoutError("timed out after reading %d of %d bytes", read, n)
			}
			if err == io.EOF {
				return nil, errors.NewConnectionError("connection closed by peer after %d of %d bytes", read, n)
			}
			return nil, convertNetworkError(err, "reading frame")
		}
	}
	return buff, nil
}

// RecvFrame reads one length-prefixed frame. Header and payload share deadline. Frames longer than maxSize are
// rejected with InvalidFrame before any payload is read.
func RecvFrame(conn net.Conn, deadline time.Time, maxSize int) ([]byte, error) {
	header, err := ReadFull(conn, deadline, FrameHeaderSize)
	if err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header)
	if uint64(size) > uint64(maxSize) {
		return nil, errors.NewOpiErrorf(errors.InvalidFrame, "frame of %d bytes exceeds maximum of %d", size, maxSize)
	}
	if size == 0 {
		return []byte{}, nil
	}
	return ReadFull(conn, deadline, int(size))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func convertNetworkError(err error, action string) error {
	if isTimeout(err) {
		return errors.NewTimeoutError("timed out %s: %v", action, err)
	}
	return errors.NewConnectionError("network error %s: %v", action, err)
}
