package protocol

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spirit-labs/opi/errors"
	"github.com/stretchr/testify/require"
)

func TestRequestIDsStrictlyIncrease(t *testing.T) {
	ctx, err := NewContext("POS-1", "opi-test")
	require.NoError(t, err)
	prefix := strconv.FormatInt(ctx.prefix, 10)
	last := uint64(0)
	for i := 0; i < 100; i++ {
		id := ctx.NextRequestID()
		parts := strings.Split(id, "_")
		require.Len(t, parts, 2)
		require.Equal(t, prefix, parts[0])
		n, err := strconv.ParseUint(parts[1], 10, 64)
		require.NoError(t, err)
		require.Greater(t, n, last)
		last = n
	}
}

func TestRequestIDsUniqueAcrossGoroutines(t *testing.T) {
	ctx, err := NewContext("POS-1", "opi-test")
	require.NoError(t, err)
	var lock sync.Mutex
	seen := map[string]struct{}{}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := ctx.NextRequestID()
				lock.Lock()
				seen[id] = struct{}{}
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, 1600)
}

func TestNewContextRequiresIDs(t *testing.T) {
	_, err := NewContext("", "app")
	require.True(t, errors.IsOpiErrorWithCode(err, errors.InvalidArgument))
	_, err = NewContext("POS-1", " ")
	require.True(t, errors.IsOpiErrorWithCode(err, errors.InvalidArgument))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 11, 12, 345_000_000, time.UTC)
	require.Equal(t, "2024-03-05T10:11:12.345Z", FormatTimestamp(ts))
	ts = time.Date(2024, 3, 5, 10, 11, 12, 0, time.FixedZone("CET", 3600))
	require.Equal(t, "2024-03-05T10:11:12.000+01:00", FormatTimestamp(ts))
}

func TestResultsAndDevices(t *testing.T) {
	require.Len(t, Results(), 12)
	for _, r := range Results() {
		require.True(t, r.Valid())
	}
	_, ok := ParseResult("")
	require.False(t, ok)
	_, ok = ParseResult("Ok")
	require.False(t, ok)
	r, ok := ParseResult("Busy")
	require.True(t, ok)
	require.Equal(t, Busy, r)

	require.Len(t, Devices(), 17)
	require.True(t, PrinterReceipt.Known())
	require.False(t, Device("Toaster").Known())
}
