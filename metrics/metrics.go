package metrics

import (
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spirit-labs/opi/common"
	"github.com/spirit-labs/opi/conf"
	"github.com/spirit-labs/opi/errors"
	log "github.com/spirit-labs/opi/logger"
)

type CounterOpts = prometheus.CounterOpts

// Server exports the default registry on /metrics. A Server built from a disabled config does nothing.
type Server struct {
	config     conf.MetricsConfig
	lock       sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	dummy      bool
}

type metricServer struct{}

func (ms *metricServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			DisableCompression: true,
		}),
	).ServeHTTP(w, r)
}

func NewServer(config conf.MetricsConfig) *Server {
	if !config.Enabled {
		return &Server{dummy: true}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", &metricServer{})
	return &Server{
		config: config,
		httpServer: &http.Server{
			Addr:    config.Bind,
			Handler: mux,
		},
	}
}

// Start binds synchronously so a bad address is reported to the caller, then serves in the background.
func (s *Server) Start() error {
	if s.dummy {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	listener, err := net.Listen("tcp", s.config.Bind)
	if err != nil {
		return err
	}
	s.listener = listener
	common.Go(func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("prometheus http export server failed to serve %v", err)
		}
	})
	log.Debugf("started prometheus http server on address %s", listener.Addr().String())
	return nil
}

// Address is the bound address, useful when the configured port is 0.
func (s *Server) Address() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() error {
	if s.dummy {
		return nil
	}
	return s.httpServer.Close()
}
