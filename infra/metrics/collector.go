package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/rcpanel/core/metrics"
	"github.com/kilianp07/rcpanel/core/status"
	"github.com/kilianp07/rcpanel/infra/logger"
)

// StatusFeed is a source of applied status records.
type StatusFeed interface {
	Subscribe() <-chan status.Record
	Unsubscribe(ch <-chan status.Record)
}

// StartStatusCollector subscribes to the status feed and records every applied
// record. It stops when the context is canceled or the feed is closed.
func StartStatusCollector(ctx context.Context, feed StatusFeed, sink coremetrics.Sink) {
	if feed == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.StatusRecorder)
	if !ok {
		return
	}
	log := logger.New("status-collector")
	sub := feed.Subscribe()
	go func() {
		defer feed.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-sub:
				if !ok {
					return
				}
				if err := rec.RecordStatus(coremetrics.StatusEvent{Source: r.Source.String(), Time: r.ObservedAt}); err != nil {
					log.Errorf("record status: %v", err)
				}
			}
		}
	}()
}
