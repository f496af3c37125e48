package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// updatesBuffer is the number of views held for a slow consumer before the
// oldest is discarded.
const updatesBuffer = 16

type eventKind int

const (
	eventSentinelVisible eventKind = iota
	eventSentinelHidden
	eventLoadPrevious
	eventNavigate
	eventTeardown
)

type event struct {
	kind    eventKind
	address string
}

// Loop owns a Session on a dedicated goroutine. Fetches run concurrently;
// their completions and all UI events are applied one at a time.
type Loop struct {
	session     *Session
	events      chan event
	completions chan Completion
	updates     chan View
	ready       *Deferred[View]
	done        chan struct{}
	logger      zerolog.Logger

	startOnce sync.Once
	fetches   sync.WaitGroup
}

// NewLoop creates a loop for s. Call Run to start it.
func NewLoop(s *Session) *Loop {
	if s == nil {
		panic("session cannot be nil")
	}
	return &Loop{
		session:     s,
		events:      make(chan event),
		completions: make(chan Completion),
		updates:     make(chan View, updatesBuffer),
		ready:       NewDeferred[View](),
		done:        make(chan struct{}),
		logger:      s.logger.With().Str("component", "session-loop").Logger(),
	}
}

// Run mounts the session and processes events until ctx is done or Teardown
// is called. The session is torn down on return and Updates is closed.
// Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	started := false
	l.startOnce.Do(func() { started = true })
	if !started {
		return ErrSessionClosed
	}

	defer func() {
		l.session.Teardown()
		close(l.done)
		l.fetches.Wait()
		l.ready.Reject(ErrSessionClosed)
		close(l.updates)
	}()

	l.start(l.session.Mount())
	l.publish()

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug().Err(ctx.Err()).Msg("Loop context done")
			return ctx.Err()

		case c := <-l.completions:
			if l.session.Apply(c) {
				l.publish()
			}

		case ev := <-l.events:
			switch ev.kind {
			case eventSentinelVisible:
				l.start(l.session.SentinelVisible())
			case eventSentinelHidden:
				l.session.SentinelHidden()
			case eventLoadPrevious:
				l.start(l.session.LoadPrevious())
			case eventNavigate:
				l.start(l.session.Navigate(ev.address))
			case eventTeardown:
				return nil
			}
			l.publish()
		}
	}
}

// SentinelVisible forwards a sentinel visibility signal.
func (l *Loop) SentinelVisible() error {
	return l.send(event{kind: eventSentinelVisible})
}

// SentinelHidden forwards a sentinel hidden signal.
func (l *Loop) SentinelHidden() error {
	return l.send(event{kind: eventSentinelHidden})
}

// LoadPrevious requests the page before the lowest loaded one.
func (l *Loop) LoadPrevious() error {
	return l.send(event{kind: eventLoadPrevious})
}

// Navigate follows address.
func (l *Loop) Navigate(address string) error {
	return l.send(event{kind: eventNavigate, address: address})
}

// Teardown stops the loop and tears the session down.
func (l *Loop) Teardown() {
	_ = l.send(event{kind: eventTeardown})
}

// Updates delivers views in the order they were produced. It is closed when
// the loop stops.
func (l *Loop) Updates() <-chan View {
	return l.updates
}

// Ready resolves with the first view that is no longer pending.
func (l *Loop) Ready() *Deferred[View] {
	return l.ready
}

// Done is closed when the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) send(ev event) error {
	select {
	case l.events <- ev:
		return nil
	case <-l.done:
		return ErrSessionClosed
	}
}

// start runs fetches on their own goroutines.
func (l *Loop) start(fetches []Fetch) {
	for _, f := range fetches {
		l.fetches.Add(1)
		go func(f Fetch) {
			defer l.fetches.Done()
			c := f.Run()
			select {
			case l.completions <- c:
			case <-l.done:
			}
		}(f)
	}
}

// publish queues the current view, discarding the oldest queued view when
// the consumer lags behind.
func (l *Loop) publish() {
	v := l.session.View()
	if !v.Pending {
		l.ready.Resolve(v)
	}

	for {
		select {
		case l.updates <- v:
			return
		default:
		}

		select {
		case <-l.updates:
			l.logger.Debug().Msg("Dropped unread view")
		default:
		}
	}
}
