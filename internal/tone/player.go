// Package tone plays short fixed audio cues such as ring-back, busy and
// hold music. Playback is best effort: a missing file or a device that
// will not open simply means silence.
package tone

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/rs/zerolog/log"
)

type Player struct {
	backend audio.Backend
	dir     string

	mu      sync.Mutex
	output  string
	cache   map[core.Cue]*clip
	current *playback
}

var _ core.TonePlayer = (*Player)(nil)

// New reads cues from dir/<name>.wav.
func New(backend audio.Backend, dir string) *Player {
	return &Player{
		backend: backend,
		dir:     dir,
		cache:   make(map[core.Cue]*clip),
	}
}

func (p *Player) SetOutputDevice(ref string) {
	p.mu.Lock()
	p.output = ref
	p.mu.Unlock()
}

func (p *Player) Play(cue core.Cue, loop bool, gapMs int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	c, ok := p.clipLocked(cue)
	if !ok {
		return
	}
	gap := 0
	if loop {
		gap = c.silenceFrames(gapMs)
	}
	pb := newPlayback(cue, c, loop, gap)
	stream, err := p.backend.OpenPlayback(p.output, c.format(), pb.fill)
	if err != nil {
		log.Warn().Err(err).Str("module", "tone").Str("cue", string(cue)).Msg("open output")
		return
	}
	pb.attach(stream)
	p.current = pb
	log.Debug().Str("module", "tone").Str("cue", string(cue)).Bool("loop", loop).Int("gap_ms", gapMs).Msg("play")
}

func (p *Player) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
}

// Playing reports the cue in flight, if any.
func (p *Player) Playing() (core.Cue, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || !p.current.active() {
		return "", false
	}
	return p.current.cue, true
}

func (p *Player) stopLocked() {
	if p.current != nil {
		p.current.stop()
		p.current = nil
	}
}

func (p *Player) clipLocked(cue core.Cue) (*clip, bool) {
	if c, ok := p.cache[cue]; ok {
		return c, true
	}
	c, err := loadClip(filepath.Join(p.dir, string(cue)+".wav"))
	if err != nil {
		log.Debug().Err(err).Str("module", "tone").Str("cue", string(cue)).Msg("cue unavailable")
		return nil, false
	}
	p.cache[cue] = c
	return c, true
}

// playback is one run of a cue. fill runs on the audio thread; stop may
// be called from any goroutine and only flips the liveness flag, the
// watcher goroutine closes the device.
type playback struct {
	cue  core.Cue
	clip *clip
	loop bool
	gap  int

	alive    atomic.Bool
	pos      int
	silence  int
	finished chan struct{}
	stopped  chan struct{}
	finOnce  sync.Once
	stopOnce sync.Once
}

func newPlayback(cue core.Cue, c *clip, loop bool, gap int) *playback {
	pb := &playback{
		cue:      cue,
		clip:     c,
		loop:     loop,
		gap:      gap,
		finished: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	pb.alive.Store(true)
	return pb
}

func (pb *playback) attach(stream audio.Stream) {
	go func() {
		select {
		case <-pb.finished:
		case <-pb.stopped:
		}
		pb.alive.Store(false)
		if err := stream.Close(); err != nil {
			log.Debug().Err(err).Str("module", "tone").Msg("close output")
		}
	}()
}

func (pb *playback) active() bool { return pb.alive.Load() }

func (pb *playback) stop() {
	pb.alive.Store(false)
	pb.stopOnce.Do(func() { close(pb.stopped) })
}

func (pb *playback) fill(out []int16) {
	if !pb.alive.Load() {
		clear(out)
		return
	}
	samples := pb.clip.samples
	i := 0
	for i < len(out) {
		if pb.silence > 0 {
			n := min(pb.silence, len(out)-i)
			clear(out[i : i+n])
			i += n
			pb.silence -= n
			if pb.silence == 0 {
				pb.pos = 0
			}
			continue
		}
		if pb.pos >= len(samples) {
			if !pb.loop {
				clear(out[i:])
				pb.finOnce.Do(func() { close(pb.finished) })
				return
			}
			if pb.gap > 0 {
				pb.silence = pb.gap
				continue
			}
			pb.pos = 0
		}
		n := copy(out[i:], samples[pb.pos:])
		pb.pos += n
		i += n
	}
}
