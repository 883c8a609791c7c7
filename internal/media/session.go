package media

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/codec"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// session is one started media path. alive guards every callback so that
// audio threads still in flight after close stop touching buffers.
type session struct {
	t      *Transport
	link   link
	sel    domain.AudioSelection
	logger zerolog.Logger

	alive  atomic.Bool
	ring   *audio.Ring
	sendQ  chan []byte
	done   chan struct{}
	group  errgroup.Group
	closed sync.Once

	// pcm accumulates capture samples into whole frames; capture thread only.
	pcm []int16

	devMu    sync.Mutex
	capture  audio.Stream
	playback audio.Stream
}

func newSession(t *Transport, l link, sel domain.AudioSelection) *session {
	s := &session{
		t:     t,
		link:  l,
		sel:   sel,
		ring:  audio.NewRing(playbackFrames * codec.FrameSamples),
		sendQ: make(chan []byte, sendQueueFrames),
		done:  make(chan struct{}),
		pcm:   make([]int16, 0, codec.FrameSamples),
	}
	s.alive.Store(true)
	return s
}

func (s *session) openCapture(ref string) {
	st, err := s.t.backend.OpenCapture(ref, audio.Mono8k, s.onCapture)
	if err != nil {
		s.logger.Warn().Err(err).Str("device", ref).Msg("open capture")
		return
	}
	s.devMu.Lock()
	s.capture = st
	s.devMu.Unlock()
}

func (s *session) openPlayback(ref string) {
	st, err := s.t.backend.OpenPlayback(ref, audio.Mono8k, s.onPlayback)
	if err != nil {
		s.logger.Warn().Err(err).Str("device", ref).Msg("open playback")
		return
	}
	s.devMu.Lock()
	s.playback = st
	s.devMu.Unlock()
}

func (s *session) swapPlayback(ref string) error {
	st, err := s.t.backend.OpenPlayback(ref, audio.Mono8k, s.onPlayback)
	if err != nil {
		s.logger.Warn().Err(err).Str("device", ref).Msg("swap playback")
		return err
	}
	s.devMu.Lock()
	old := s.playback
	s.playback = st
	s.devMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	s.logger.Info().Str("device", ref).Msg("playback device changed")
	return nil
}

func (s *session) run() {
	s.group.Go(s.sendLoop)
	s.group.Go(s.recvLoop)
}

func (s *session) onCapture(samples []int16) {
	if !s.alive.Load() {
		return
	}
	for len(samples) > 0 {
		n := min(codec.FrameSamples-len(s.pcm), len(samples))
		s.pcm = append(s.pcm, samples[:n]...)
		samples = samples[n:]
		if len(s.pcm) < codec.FrameSamples {
			return
		}
		s.emitFrame()
		s.pcm = s.pcm[:0]
	}
}

func (s *session) emitFrame() {
	if s.t.muted.Load() {
		return
	}
	audio.ApplyGain(s.pcm, s.sel.InputGain)
	frame := codec.Encode(make([]byte, 0, codec.FrameSamples), s.pcm)
	select {
	case s.sendQ <- frame:
	default:
		s.t.dropped.Add(1)
	}
}

func (s *session) onPlayback(out []int16) {
	if !s.alive.Load() {
		clear(out)
		return
	}
	s.ring.Read(out)
}

func (s *session) sendLoop() error {
	var failures uint64
	for {
		select {
		case <-s.done:
			return nil
		case frame := <-s.sendQ:
			if err := s.link.Send(frame); err != nil {
				s.t.sendErrs.Add(1)
				if failures%errLogEvery == 0 {
					s.logger.Warn().Err(err).Uint64("failures", failures+1).Msg("send frame")
				}
				failures++
				continue
			}
			s.t.sent.Add(1)
		}
	}
}

func (s *session) recvLoop() error {
	var failures uint64
	pcm := make([]int16, 0, codec.FrameSamples)
	for {
		frame, err := s.link.Receive()
		if !s.alive.Load() {
			return nil
		}
		if err != nil {
			if errors.Is(err, errLinkClosed) {
				s.logger.Warn().Err(err).Msg("receive path closed")
				return nil
			}
			if failures%errLogEvery == 0 {
				s.logger.Warn().Err(err).Uint64("failures", failures+1).Msg("receive frame")
			}
			failures++
			select {
			case <-s.done:
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}
		if len(frame) == 0 {
			continue
		}
		pcm = codec.Decode(pcm[:0], frame)
		audio.ApplyGain(pcm, s.sel.OutputGain)
		s.ring.Write(pcm)
		s.t.received.Add(1)
	}
}

func (s *session) close() {
	s.closed.Do(func() {
		s.alive.Store(false)
		close(s.done)

		s.devMu.Lock()
		capture, playback := s.capture, s.playback
		s.capture, s.playback = nil, nil
		s.devMu.Unlock()
		if capture != nil {
			_ = capture.Close()
		}
		if playback != nil {
			_ = playback.Close()
		}

		if err := s.link.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close link")
		}
		_ = s.group.Wait()
		s.ring.Reset()
	})
}
