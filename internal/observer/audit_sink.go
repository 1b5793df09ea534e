package observer

import (
	"github.com/chargenet/central-system/internal/logger"
)

// LogAuditSink is the default AuditSink: one structured log line per
// record shape spec.md §6 defines, grounded on the teacher's zerolog
// idiom (internal/logger.Logger.GetLogger()). Deployments that need a
// durable audit trail plug in KafkaAuditSink alongside or instead of
// this one; both can be registered on the same Bus.
type LogAuditSink struct {
	log *logger.Logger
}

func NewLogAuditSink(log *logger.Logger) *LogAuditSink {
	return &LogAuditSink{log: log}
}

func (s *LogAuditSink) Frame(stationID string, dir Direction, raw []byte, remoteAddr string) {
	s.log.GetLogger().Info().
		Str("type", "ocpp").
		Str("cp", stationID).
		Str("dir", string(dir)).
		RawJSON("msg", raw).
		Str("remote_addr", remoteAddr).
		Msg("ocpp frame")
}

func (s *LogAuditSink) Connect(stationID string, remoteAddr string) {
	s.log.GetLogger().Info().
		Str("type", "ws").
		Str("cp", stationID).
		Str("event", "connect").
		Str("remote_addr", remoteAddr).
		Msg("station connected")
}

func (s *LogAuditSink) Disconnect(stationID string, remoteAddr string) {
	s.log.GetLogger().Info().
		Str("type", "ws").
		Str("cp", stationID).
		Str("event", "disconnect").
		Str("remote_addr", remoteAddr).
		Msg("station disconnected")
}

var _ AuditSink = (*LogAuditSink)(nil)
