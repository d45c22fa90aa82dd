package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Channel0 carries POS requests to the EPS.
	Channel0 = "0"
	// Channel1 carries EPS device requests to the POS.
	Channel1 = "1"

	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	framesTotal = prometheus.NewCounterVec(CounterOpts{
		Name: "opi_frames_total",
		Help: "Frames sent and received, by channel and direction",
	}, []string{"channel", "direction"})

	frameTimeoutsTotal = prometheus.NewCounterVec(CounterOpts{
		Name: "opi_frame_timeouts_total",
		Help: "Frame reads abandoned because their deadline passed",
	}, []string{"channel"})

	deviceOutputsTotal = prometheus.NewCounterVec(CounterOpts{
		Name: "opi_device_outputs_total",
		Help: "Device outputs processed, by device and result",
	}, []string{"device", "result"})

	requestsTotal = prometheus.NewCounterVec(CounterOpts{
		Name: "opi_requests_total",
		Help: "Requests sent to the EPS, by request type and outcome",
	}, []string{"request_type", "success"})
)

func init() {
	prometheus.MustRegister(framesTotal, frameTimeoutsTotal, deviceOutputsTotal, requestsTotal)
}

func FrameSent(channel string) {
	framesTotal.WithLabelValues(channel, DirectionOut).Inc()
}

func FrameReceived(channel string) {
	framesTotal.WithLabelValues(channel, DirectionIn).Inc()
}

func FrameTimeout(channel string) {
	frameTimeoutsTotal.WithLabelValues(channel).Inc()
}

func DeviceOutput(device string, result string) {
	deviceOutputsTotal.WithLabelValues(device, result).Inc()
}

func RequestCompleted(requestType string, success bool) {
	requestsTotal.WithLabelValues(requestType, strconv.FormatBool(success)).Inc()
}
