package phone

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/domain"
)

type sent struct {
	Type   core.MessageType
	Fields core.Fields
}

type fakeSignal struct {
	mu          sync.Mutex
	online      bool
	connectErr  error
	connects    int
	disconnects int
	sent        []sent
	events      chan core.Event
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{events: make(chan core.Event)}
}

func (s *fakeSignal) Connect(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.connectErr != nil {
		return s.connectErr
	}
	s.online = true
	return nil
}

func (s *fakeSignal) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.online = false
}

func (s *fakeSignal) Send(t core.MessageType, f core.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.online {
		return
	}
	cp := core.Fields{}
	for k, v := range f {
		cp[k] = v
	}
	s.sent = append(s.sent, sent{Type: t, Fields: cp})
}

func (s *fakeSignal) Events() <-chan core.Event { return s.events }

func (s *fakeSignal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *fakeSignal) setOnline(v bool) {
	s.mu.Lock()
	s.online = v
	s.mu.Unlock()
}

func (s *fakeSignal) messages(t core.MessageType) []core.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Fields
	for _, m := range s.sent {
		if m.Type == t {
			out = append(out, m.Fields)
		}
	}
	return out
}

func (s *fakeSignal) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeMedia struct {
	mu       sync.Mutex
	endpoint string
	startErr error
	starts   []core.MediaRoute
	sels     []domain.AudioSelection
	stops    int
	muted    bool
	outputs  []string
	// gate, when set, holds Start until closed; ctxErrs records the
	// start context's state on release.
	gate    chan struct{}
	ctxErrs []error
}

func (m *fakeMedia) LocalEndpoint() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint, nil
}

func (m *fakeMedia) Start(ctx context.Context, r core.MediaRoute, sel domain.AudioSelection) error {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if gate != nil {
		m.ctxErrs = append(m.ctxErrs, ctx.Err())
	}
	if m.startErr != nil {
		return m.startErr
	}
	m.starts = append(m.starts, r)
	m.sels = append(m.sels, sel)
	return nil
}

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
}

func (m *fakeMedia) SetMuted(v bool) {
	m.mu.Lock()
	m.muted = v
	m.mu.Unlock()
}

func (m *fakeMedia) ChangeOutputDevice(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.starts) == 0 {
		return errors.New("not started")
	}
	m.outputs = append(m.outputs, ref)
	return nil
}

func (m *fakeMedia) snapshot() (starts []core.MediaRoute, stops int, muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.MediaRoute(nil), m.starts...), m.stops, m.muted
}

type play struct {
	Cue  core.Cue
	Loop bool
	Gap  int
}

type fakeTones struct {
	mu      sync.Mutex
	plays   []play
	stops   int
	playing *play
	output  string
}

func (t *fakeTones) Play(cue core.Cue, loop bool, gapMs int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := play{Cue: cue, Loop: loop, Gap: gapMs}
	t.plays = append(t.plays, p)
	t.playing = &p
}

func (t *fakeTones) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	t.playing = nil
}

func (t *fakeTones) SetOutputDevice(ref string) {
	t.mu.Lock()
	t.output = ref
	t.mu.Unlock()
}

// current is the cue playing now, if any.
func (t *fakeTones) current() (play, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing == nil {
		return play{}, false
	}
	return *t.playing, true
}

func (t *fakeTones) played(cue core.Cue) []play {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []play
	for _, p := range t.plays {
		if p.Cue == cue {
			out = append(out, p)
		}
	}
	return out
}
