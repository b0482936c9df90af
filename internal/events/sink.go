package events

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/store"
)

// LogSink persists bus events as activity-log rows. It subscribes as an
// always-on consumer and drops progress events.
type LogSink struct {
	store *store.Store
	log   zerolog.Logger
	sub   *Subscription
}

// NewLogSink subscribes a sink to the bus.
func NewLogSink(bus *Bus, st *store.Store, log zerolog.Logger) *LogSink {
	return &LogSink{
		store: st,
		log:   log.With().Str("component", "logsink").Logger(),
		sub:   bus.Subscribe(),
	}
}

// Run consumes events until the context is cancelled or the bus closes.
func (s *LogSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.sub.Unsubscribe()
			return
		case e, ok := <-s.sub.C():
			if !ok {
				return
			}
			if e.IsProgress() {
				continue
			}
			s.persist(ctx, e)
		}
	}
}

func (s *LogSink) persist(ctx context.Context, e Event) {
	var details *string
	if len(e.Data) > 0 {
		if data, err := json.Marshal(e.Data); err == nil {
			str := string(data)
			details = &str
		}
	}
	if err := s.store.AddLog(ctx, string(e.Type), levelFor(e.Type), e.Message, details); err != nil {
		s.log.Error().Err(err).Str("event", string(e.Type)).Msg("failed to persist event")
	}
}

func levelFor(t Type) string {
	switch t {
	case Error:
		return "error"
	case DownloadFinished, ImportFinished, RenameFinished:
		return "success"
	default:
		return "info"
	}
}
