// Package phone is the call session coordinator: it reconciles local
// commands with signaling events and drives media and tones.
//
// All state lives on one event-loop goroutine. Commands are posted to it
// as closures and signaling events arrive on a single ordered channel, so
// a command never interleaves with an event mid-transition.
package phone

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyNumber = errors.New("number is empty")
	ErrNotIdle     = errors.New("a call is already in progress")
	ErrNoCall      = errors.New("no call in a state that allows this")
	ErrClosed      = errors.New("coordinator closed")
	ErrOffline     = errors.New("signaling channel offline")
)

// Peer display indicators.
const (
	DisplayUnreachable  = "unreachable"
	DisplayUnregistered = "unregistered"
	DisplayBusy         = "busy"
	DisplayRejected     = "rejected"
	DisplayOffline      = "offline"
)

const (
	DefaultRingGapMs        = 4000
	DefaultHoldGapMs        = 1000
	DefaultBusyDisplayDelay = 2 * time.Second
	defaultMediaTimeout     = 5 * time.Second
)

type Options struct {
	Signal    core.SignalChannel
	Media     core.MediaTransport
	Tones     core.TonePlayer
	Directory core.Directory

	RelayAddr string
	Audio     domain.AudioSelection

	RingGapMs        int
	HoldGapMs        int
	BusyDisplayDelay time.Duration
	MediaTimeout     time.Duration
}

type Coordinator struct {
	sig   core.SignalChannel
	media core.MediaTransport
	tones core.TonePlayer
	dir   core.Directory

	relayAddr    string
	ringGap      int
	holdGap      int
	busyDelay    time.Duration
	mediaTimeout time.Duration

	cmds   chan func()
	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool

	notify hub
	logger zerolog.Logger

	// Event-loop state.
	machine *fsm.FSM
	station domain.Station
	ownID   core.ConnID
	call    *domain.CallSession
	callSeq uint64
	// declined marks an outgoing call answered with busy.
	declined bool
	audio   domain.AudioSelection
	// cancelStart aborts the media start in flight for startSeq.
	cancelStart context.CancelFunc
	startSeq    uint64

	muted   atomic.Bool
	speaker atomic.Bool
	online  atomic.Bool

	// snapshot mirrors event-loop state for accessors.
	snapMu   sync.RWMutex
	status   Status
	display  string
	session  *domain.CallSession
	identity domain.Station
}

// New starts the coordinator's event loop. It is Idle and offline until
// Login.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		sig:          opts.Signal,
		media:        opts.Media,
		tones:        opts.Tones,
		dir:          opts.Directory,
		relayAddr:    opts.RelayAddr,
		ringGap:      opts.RingGapMs,
		holdGap:      opts.HoldGapMs,
		busyDelay:    opts.BusyDisplayDelay,
		mediaTimeout: opts.MediaTimeout,
		audio:        opts.Audio,
		cmds:         make(chan func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		status:       Idle,
		logger:       log.With().Str("module", "phone").Logger(),
	}
	if c.mediaTimeout <= 0 {
		c.mediaTimeout = defaultMediaTimeout
	}
	c.machine = newMachine(c.onEnter)
	go c.run()
	return c
}

func (c *Coordinator) run() {
	defer close(c.done)
	events := c.sig.Events()
	for {
		select {
		case <-c.quit:
			return
		case fn := <-c.cmds:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
		}
	}
}

// do runs fn on the event loop and waits for it.
func (c *Coordinator) do(fn func() error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	errc := make(chan error, 1)
	select {
	case c.cmds <- func() { errc <- fn() }:
	case <-c.done:
		return ErrClosed
	}
	return <-errc
}

// post schedules fn on the event loop without waiting.
func (c *Coordinator) post(fn func()) {
	go func() {
		select {
		case c.cmds <- fn:
		case <-c.done:
		}
	}()
}

// Subscribe returns an ordered notification stream and its cancel func.
func (c *Coordinator) Subscribe() (<-chan Notification, func()) {
	return c.notify.subscribe()
}

// Login connects the signaling channel and registers st with the relay.
// If the relay is unreachable the channel keeps retrying and the login
// is sent once it reconnects.
func (c *Coordinator) Login(ctx context.Context, st domain.Station) error {
	return c.do(func() error {
		c.setStation(st)
		return c.connectLocked(ctx)
	})
}

func (c *Coordinator) connectLocked(ctx context.Context) error {
	if err := c.sig.Connect(ctx, c.relayAddr); err != nil {
		c.logger.Warn().Err(err).Str("relay", c.relayAddr).Msg("relay unreachable")
		c.setOnline(false)
		return err
	}
	c.setOnline(true)
	c.sendLogin()
	return nil
}

func (c *Coordinator) sendLogin() {
	if c.station.Number == "" {
		return
	}
	c.sig.Send(core.MsgLogin, core.Fields{core.FieldNumber: c.station.Number, core.FieldName: c.station.Name})
	c.logger.Info().Msg("login sent")
}

// ChangeStation re-registers under st. Only allowed while Idle.
func (c *Coordinator) ChangeStation(ctx context.Context, st domain.Station) error {
	return c.do(func() error {
		if c.state() != Idle {
			return ErrNotIdle
		}
		c.logger.Info().Str("new_station", st.Number).Msg("changing station")
		c.sig.Disconnect()
		c.setOnline(false)
		c.ownID = ""
		c.setStation(st)
		return c.connectLocked(ctx)
	})
}

// ResolveName maps a number to its directory name, or the unregistered
// indicator.
func (c *Coordinator) ResolveName(number string) string {
	if st, ok := c.lookup(number); ok {
		return st.Name
	}
	return DisplayUnregistered
}

func (c *Coordinator) lookup(number string) (domain.Station, bool) {
	if c.dir == nil {
		return domain.Station{}, false
	}
	return c.dir.FindByNumber(number)
}

func (c *Coordinator) StartCall(number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return ErrEmptyNumber
	}
	name := c.ResolveName(number)
	return c.do(func() error {
		if c.state() != Idle {
			return ErrNotIdle
		}
		if !c.sig.Online() {
			c.setDisplay(DisplayUnreachable)
			c.tones.Play(core.CueNoService, false, 0)
			c.logger.Info().Str("to", number).Msg("dial while offline")
			return ErrOffline
		}
		endpoint := c.localEndpoint()
		c.beginCall(&domain.CallSession{PeerNumber: number, PeerName: name, Direction: domain.Outgoing})
		c.setDisplay(name)
		c.sig.Send(core.MsgCall, core.Fields{core.FieldTo: number, core.FieldMedia: endpoint})
		c.tones.Play(core.CueRingback, true, 0)
		c.fire(evDial)
		c.logger.Info().Str("to", number).Str("name", name).Msg("dialing")
		return nil
	})
}

func (c *Coordinator) AnswerCall() error {
	return c.do(func() error {
		if c.state() != Incoming {
			return ErrNoCall
		}
		c.tones.Stop()
		c.sig.Send(core.MsgAnswer, core.Fields{core.FieldTarget: c.call.PeerConnID, core.FieldMedia: c.localEndpoint()})
		c.call.StartedAt = time.Now()
		c.publishSession()
		c.fire(evConnect)
		c.logger.Info().Str("peer", c.call.PeerNumber).Msg("answered")
		c.startMedia()
		return nil
	})
}

func (c *Coordinator) EndCall() error {
	return c.do(func() error {
		switch c.state() {
		case Outgoing:
			c.sig.Send(core.MsgHangup, core.Fields{core.FieldTo: c.call.PeerNumber})
			c.tones.Stop()
		case Incoming:
			c.sig.Send(core.MsgReject, core.Fields{core.FieldTarget: c.call.PeerConnID})
			c.tones.Stop()
		case Talking, Holding:
			c.sig.Send(core.MsgHangup, core.Fields{core.FieldTarget: c.call.PeerConnID})
			c.media.Stop()
			c.tones.Stop()
		default:
			return ErrNoCall
		}
		c.logger.Info().Str("peer", c.call.PeerNumber).Msg("call ended locally")
		c.endCall()
		return nil
	})
}

func (c *Coordinator) ToggleHold() error {
	return c.do(func() error {
		switch {
		case c.state() == Talking:
			c.placeHold()
			c.fire(evHold)
		case c.state() == Holding && !c.call.LocalHold:
			c.placeHold()
		case c.state() == Holding:
			c.sig.Send(core.MsgResume, core.Fields{core.FieldTarget: c.call.PeerConnID})
			c.call.LocalHold = false
			c.tones.Stop()
			c.publishSession()
			if !c.call.RemoteHold {
				c.fire(evUnhold)
			}
			c.logger.Info().Bool("remote_hold", c.call.RemoteHold).Msg("resumed")
		default:
			return ErrNoCall
		}
		return nil
	})
}

func (c *Coordinator) placeHold() {
	c.sig.Send(core.MsgHold, core.Fields{core.FieldTarget: c.call.PeerConnID})
	c.call.LocalHold = true
	c.tones.Play(core.CueHold, true, c.holdGap)
	c.publishSession()
	c.logger.Info().Msg("placed on hold")
}

// ToggleMute flips the microphone mute and returns the new value.
func (c *Coordinator) ToggleMute() (bool, error) {
	var muted bool
	err := c.do(func() error {
		muted = !c.muted.Load()
		c.muted.Store(muted)
		c.media.SetMuted(muted)
		return nil
	})
	return muted, err
}

// ToggleSpeaker flips the loudspeaker preference and returns the new value.
func (c *Coordinator) ToggleSpeaker() (bool, error) {
	var on bool
	err := c.do(func() error {
		on = !c.speaker.Load()
		c.speaker.Store(on)
		return nil
	})
	return on, err
}

// UpdateAudioDevices stores a new device snapshot. A changed output
// device is swapped into a running call; tones pick it up on the next cue.
func (c *Coordinator) UpdateAudioDevices(sel domain.AudioSelection) error {
	return c.do(func() error {
		prev := c.audio
		c.audio = sel
		c.tones.SetOutputDevice(sel.Output)
		// A start in flight picks up the new output when it lands.
		if c.state().InCall() && prev.Output != sel.Output && c.cancelStart == nil {
			if err := c.media.ChangeOutputDevice(sel.Output); err != nil {
				c.logger.Warn().Err(err).Str("device", sel.Output).Msg("output device swap failed")
				return err
			}
		}
		return nil
	})
}

// Close stops tones and media and disconnects. Later calls fail with
// ErrClosed.
func (c *Coordinator) Close() error {
	err := c.do(func() error {
		if c.closed.Swap(true) {
			return ErrClosed
		}
		c.abortMediaStart()
		c.tones.Stop()
		c.media.Stop()
		c.sig.Disconnect()
		c.setOnline(false)
		return nil
	})
	if err != nil {
		return err
	}
	close(c.quit)
	<-c.done
	c.notify.closeAll()
	c.logger.Info().Msg("coordinator closed")
	return nil
}

func (c *Coordinator) Status() Status {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.status
}

func (c *Coordinator) PeerDisplay() string {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.display
}

// Session returns a copy of the current call, if any.
func (c *Coordinator) Session() (domain.CallSession, bool) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	if c.session == nil {
		return domain.CallSession{}, false
	}
	return *c.session, true
}

func (c *Coordinator) Muted() bool   { return c.muted.Load() }
func (c *Coordinator) Speaker() bool { return c.speaker.Load() }
func (c *Coordinator) Online() bool  { return c.online.Load() }

// Station is the identity last used to log in.
func (c *Coordinator) Station() domain.Station {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.identity
}

// --- event-loop helpers ---

func (c *Coordinator) state() Status { return Status(c.machine.Current()) }

func (c *Coordinator) fire(event string) {
	if err := c.machine.Event(context.Background(), event); err != nil {
		c.logger.Error().Err(err).Str("event", event).Str("state", c.machine.Current()).Msg("invalid transition")
	}
}

func (c *Coordinator) onEnter(from, to Status) {
	c.snapMu.Lock()
	c.status = to
	c.snapMu.Unlock()
	c.logger.Debug().Str("from", string(from)).Str("state", string(to)).Msg("state changed")
	c.notify.publish(Notification{Kind: StatusChanged, Status: to})
}

func (c *Coordinator) beginCall(s *domain.CallSession) {
	c.callSeq++
	c.call = s
	c.declined = false
	c.publishSession()
}

func (c *Coordinator) endCall() {
	c.abortMediaStart()
	c.call = nil
	c.callSeq++
	c.publishSession()
	c.fire(evClear)
	c.notify.publish(Notification{Kind: CallEnded})
}

func (c *Coordinator) publishSession() {
	var cp *domain.CallSession
	if c.call != nil {
		s := *c.call
		cp = &s
	}
	c.snapMu.Lock()
	c.session = cp
	c.snapMu.Unlock()
}

func (c *Coordinator) setDisplay(text string) {
	c.snapMu.Lock()
	changed := c.display != text
	c.display = text
	c.snapMu.Unlock()
	if changed {
		c.notify.publish(Notification{Kind: DisplayChanged, Text: text})
	}
}

func (c *Coordinator) setStation(st domain.Station) {
	c.station = st
	c.logger = log.With().Str("module", "phone").Str("station", st.Number).Logger()
	c.snapMu.Lock()
	c.identity = st
	c.snapMu.Unlock()
}

func (c *Coordinator) setOnline(online bool) {
	if c.online.Swap(online) != online {
		c.notify.publish(Notification{Kind: OnlineChanged, Online: online})
	}
}

func (c *Coordinator) localEndpoint() string {
	ep, err := c.media.LocalEndpoint()
	if err != nil {
		c.logger.Warn().Err(err).Msg("no local media endpoint")
		return ""
	}
	return ep
}

// startMedia dials the media path off the event loop. The result comes
// back through mediaStarted, tagged with the call it was started for.
func (c *Coordinator) startMedia() {
	c.abortMediaStart()
	route := core.MediaRoute{
		Self:      c.ownID,
		Peer:      core.ConnID(c.call.PeerConnID),
		RelayAddr: c.relayAddr,
		PeerMedia: c.call.PeerMedia,
	}
	sel := c.audio
	seq := c.callSeq
	ctx, cancel := context.WithTimeout(context.Background(), c.mediaTimeout)
	c.cancelStart, c.startSeq = cancel, seq
	c.media.SetMuted(c.muted.Load())

	go func() {
		err := c.media.Start(ctx, route, sel)
		select {
		case c.cmds <- func() { c.mediaStarted(seq, sel, err) }:
		case <-c.done:
			if err == nil {
				c.media.Stop()
			}
		}
	}()
}

func (c *Coordinator) mediaStarted(seq uint64, sel domain.AudioSelection, err error) {
	if seq == c.startSeq && c.cancelStart != nil {
		c.cancelStart()
		c.cancelStart = nil
	}
	if c.closed.Load() {
		if err == nil {
			c.media.Stop()
		}
		return
	}
	current := seq == c.callSeq && c.state().InCall()
	switch {
	case err != nil && current:
		c.logger.Error().Err(err).Str("peer", c.call.PeerNumber).Msg("media start failed, call stays up without audio")
	case err != nil:
		c.logger.Debug().Err(err).Msg("abandoned media start")
	case !current:
		// The call ended while dialing. A newer call in progress owns the
		// transport and its own Start replaces this session.
		if !c.state().InCall() {
			c.media.Stop()
		}
		c.logger.Info().Msg("late media session stopped")
	default:
		c.media.SetMuted(c.muted.Load())
		if sel.Output != c.audio.Output {
			if err := c.media.ChangeOutputDevice(c.audio.Output); err != nil {
				c.logger.Warn().Err(err).Str("device", c.audio.Output).Msg("output device swap failed")
			}
		}
		c.logger.Info().Str("peer", c.call.PeerNumber).Msg("media up")
	}
}

func (c *Coordinator) abortMediaStart() {
	if c.cancelStart != nil {
		c.cancelStart()
	}
}
