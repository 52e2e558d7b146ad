package events

import "go.uber.org/zap"

type logSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink writing events to logger. Malformed documents and
// read failures log at warn, everything else at debug.
func NewLogSink(logger *zap.Logger) Sink {
	if logger == nil {
		return NopSink{}
	}
	return &logSink{logger: logger.Named("diag")}
}

func (s *logSink) Record(e Event) {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("path", e.Path),
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	for k, v := range e.Data {
		fields = append(fields, zap.Any(k, v))
	}

	switch e.Type {
	case EventTasksMalformed, EventTasksReadError, EventLogReadError:
		s.logger.Warn("file read degraded", fields...)
	default:
		s.logger.Debug("file event", fields...)
	}
}
