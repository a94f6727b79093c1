// Package ingester composes the pipeline: it supervises one streaming
// connection per channel and routes frames through parse, aggregate, and
// persist.
package ingester

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCooldown is the wait between reconnect cycles.
const DefaultCooldown = 60 * time.Second

// EndpointSource produces a fresh single-use streaming endpoint. Every call
// performs a full credential exchange; endpoints are never reused.
type EndpointSource interface {
	AcquireEndpoint(ctx context.Context) (string, error)
}

// Streamer runs one persistent connection until it fails or the context ends.
type Streamer interface {
	Run(ctx context.Context, url string, onMessage func([]byte)) error
}

// state is the supervisor's position in its restart loop.
type state int

const (
	stateAcquiring state = iota
	stateConnected
	stateCooldown
)

func (s state) String() string {
	switch s {
	case stateAcquiring:
		return "ACQUIRING_ENDPOINT"
	case stateConnected:
		return "CONNECTED"
	case stateCooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}

// Supervisor owns one channel's restart loop:
//
//	ACQUIRING_ENDPOINT -> CONNECTED -> COOLDOWN -> ACQUIRING_ENDPOINT -> ...
//
// There is no terminal state under normal operation; only context
// cancellation exits the loop. No failure in any step escalates beyond a
// logged transition to COOLDOWN.
type Supervisor struct {
	channel  string
	source   EndpointSource
	stream   Streamer
	handle   func([]byte)
	cooldown time.Duration
	log      *logrus.Logger

	// wait overrides the cooldown sleep in tests.
	wait func(ctx context.Context, d time.Duration)
}

// NewSupervisor creates a Supervisor for one channel.
func NewSupervisor(channel string, source EndpointSource, stream Streamer, handle func([]byte), cooldown time.Duration, log *logrus.Logger) *Supervisor {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Supervisor{
		channel:  channel,
		source:   source,
		stream:   stream,
		handle:   handle,
		cooldown: cooldown,
		log:      log,
	}
}

// Run loops through the state machine until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	st := stateAcquiring
	var endpoint string

	for {
		if ctx.Err() != nil {
			s.log.Infof("[%s] Supervisor stopped", s.channel)
			return
		}

		switch st {
		case stateAcquiring:
			url, err := s.source.AcquireEndpoint(ctx)
			if err != nil {
				s.log.Errorf("[%s] Endpoint acquisition failed: %v", s.channel, err)
				st = stateCooldown
				continue
			}
			endpoint = url
			s.log.Infof("[%s] %s -> %s", s.channel, stateAcquiring, stateConnected)
			st = stateConnected

		case stateConnected:
			err := s.stream.Run(ctx, endpoint, s.handle)
			if err != nil {
				s.log.Errorf("[%s] Connection terminated: %v", s.channel, err)
			} else {
				s.log.Warnf("[%s] Connection closed", s.channel)
			}
			s.log.Infof("[%s] %s -> %s", s.channel, stateConnected, stateCooldown)
			st = stateCooldown

		case stateCooldown:
			s.log.Infof("[%s] Cooling down for %v before reconnecting", s.channel, s.cooldown)
			s.sleep(ctx, s.cooldown)
			st = stateAcquiring
		}
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	if s.wait != nil {
		s.wait(ctx, d)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
