package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spirit-labs/opi/conf"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(framesTotal.WithLabelValues(Channel0, DirectionOut))
	FrameSent(Channel0)
	require.Equal(t, before+1, testutil.ToFloat64(framesTotal.WithLabelValues(Channel0, DirectionOut)))

	before = testutil.ToFloat64(frameTimeoutsTotal.WithLabelValues(Channel1))
	FrameTimeout(Channel1)
	require.Equal(t, before+1, testutil.ToFloat64(frameTimeoutsTotal.WithLabelValues(Channel1)))

	before = testutil.ToFloat64(deviceOutputsTotal.WithLabelValues("Printer", "Success"))
	DeviceOutput("Printer", "Success")
	require.Equal(t, before+1, testutil.ToFloat64(deviceOutputsTotal.WithLabelValues("Printer", "Success")))

	before = testutil.ToFloat64(requestsTotal.WithLabelValues("Login", "false"))
	RequestCompleted("Login", false)
	require.Equal(t, before+1, testutil.ToFloat64(requestsTotal.WithLabelValues("Login", "false")))
}

func TestDisabledServerIsNoop(t *testing.T) {
	s := NewServer(conf.MetricsConfig{Enabled: false})
	require.NoError(t, s.Start())
	require.Equal(t, "", s.Address())
	require.NoError(t, s.Stop())
}

func TestServerExportsCounters(t *testing.T) {
	s := NewServer(conf.MetricsConfig{Enabled: true, Bind: "127.0.0.1:0"})
	require.NoError(t, s.Start())
	defer func() {
		require.NoError(t, s.Stop())
	}()
	FrameReceived(Channel1)

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", s.Address()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `opi_frames_total{channel="1",direction="in"}`))
}
