// Package transport combines the engine's output sinks.
package transport

import (
	"context"

	"go.uber.org/multierr"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

type ReplySink interface {
	SendReply(ctx context.Context, clientID string, reply spot.Reply) error
}

type EventSink interface {
	PushEvent(ctx context.Context, ev spot.Event) error
}

type StreamSink interface {
	PublishStream(ctx context.Context, msg spot.StreamMessage) error
}

// Fanout delivers each output to every sink that accepts it. A failing sink
// does not stop delivery to the others; errors are combined.
type Fanout struct {
	replies []ReplySink
	events  []EventSink
	streams []StreamSink
}

// NewFanout sorts sinks by the outputs they implement. A sink may implement
// any combination; nil sinks are skipped.
func NewFanout(sinks ...interface{}) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if r, ok := s.(ReplySink); ok {
			f.replies = append(f.replies, r)
		}
		if e, ok := s.(EventSink); ok {
			f.events = append(f.events, e)
		}
		if st, ok := s.(StreamSink); ok {
			f.streams = append(f.streams, st)
		}
	}
	return f
}

func (f *Fanout) SendReply(ctx context.Context, clientID string, reply spot.Reply) error {
	var err error
	for _, s := range f.replies {
		err = multierr.Append(err, s.SendReply(ctx, clientID, reply))
	}
	return err
}

func (f *Fanout) PushEvent(ctx context.Context, ev spot.Event) error {
	var err error
	for _, s := range f.events {
		err = multierr.Append(err, s.PushEvent(ctx, ev))
	}
	return err
}

func (f *Fanout) PublishStream(ctx context.Context, msg spot.StreamMessage) error {
	var err error
	for _, s := range f.streams {
		err = multierr.Append(err, s.PublishStream(ctx, msg))
	}
	return err
}

var _ spot.Publisher = (*Fanout)(nil)
