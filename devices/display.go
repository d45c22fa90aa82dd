package devices

import (
	log "github.com/spirit-labs/opi/logger"
	"github.com/spirit-labs/opi/protocol"
	"go.uber.org/zap"
)

// LogHandler writes the lines of each output to the log. It stands in for displays and for the Log device when
// nothing else is configured.
type LogHandler struct {
	logger *zap.SugaredLogger
}

func NewLogHandler(device protocol.Device) *LogHandler {
	return &LogHandler{logger: log.Named("device").With("device", string(device))}
}

func (l *LogHandler) Output(spec protocol.OutputSpec) (protocol.Result, error) {
	for _, line := range spec.Lines {
		l.logger.Infow(line.Text, "type", line.Type)
	}
	return protocol.Success, nil
}
