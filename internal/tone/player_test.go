package tone

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

type fakeStream struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeBackend struct {
	audio.Null
	mu      sync.Mutex
	fills   []func([]int16)
	streams []*fakeStream
	refs    []string
	formats []audio.Format
	failing bool
}

func (b *fakeBackend) OpenPlayback(ref string, f audio.Format, fill func([]int16)) (audio.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return nil, audio.ErrDeviceNotFound
	}
	s := &fakeStream{}
	b.fills = append(b.fills, fill)
	b.streams = append(b.streams, s)
	b.refs = append(b.refs, ref)
	b.formats = append(b.formats, f)
	return s, nil
}

func (b *fakeBackend) last() (func([]int16), *fakeStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fills[len(b.fills)-1], b.streams[len(b.streams)-1]
}

func (b *fakeBackend) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fills)
}

// writeCue writes a mono 16-bit cue whose samples are 1..n.
func writeCue(t *testing.T, dir string, cue core.Cue, rate uint32, n int) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, string(cue)+".wav"))
	require.NoError(t, err)
	defer f.Close()

	w := wav.NewWriter(f, uint32(n), 1, rate, 16)
	samples := make([]wav.Sample, n)
	for i := range samples {
		samples[i].Values[0] = i + 1
	}
	require.NoError(t, w.WriteSamples(samples))
}

func TestPlayer_PlayOnceThenFinishes(t *testing.T) {
	dir := t.TempDir()
	writeCue(t, dir, core.CueBusy, 8000, 4)
	b := &fakeBackend{}
	p := New(b, dir)

	p.Play(core.CueBusy, false, 0)
	require.Equal(t, 1, b.opened())
	fill, stream := b.last()

	out := make([]int16, 6)
	fill(out)
	assert.Equal(t, []int16{1, 2, 3, 4, 0, 0}, out)

	require.Eventually(t, stream.isClosed, time.Second, 5*time.Millisecond)
	_, playing := p.Playing()
	assert.False(t, playing)
}

func TestPlayer_LoopBackToBack(t *testing.T) {
	dir := t.TempDir()
	writeCue(t, dir, core.CueRingback, 8000, 3)
	b := &fakeBackend{}
	p := New(b, dir)

	p.Play(core.CueRingback, true, 0)
	fill, _ := b.last()

	out := make([]int16, 8)
	fill(out)
	assert.Equal(t, []int16{1, 2, 3, 1, 2, 3, 1, 2}, out)
}

func TestPlayer_LoopWithSilenceGap(t *testing.T) {
	dir := t.TempDir()
	// 1000 Hz mono 16-bit: byte rate 2000, block 2, so 2 ms of gap is 2 frames.
	writeCue(t, dir, core.CueRingtone, 1000, 3)
	b := &fakeBackend{}
	p := New(b, dir)

	p.Play(core.CueRingtone, true, 2)
	fill, _ := b.last()
	assert.Equal(t, audio.Format{SampleRate: 1000, Channels: 1}, b.formats[0])

	out := make([]int16, 10)
	fill(out)
	assert.Equal(t, []int16{1, 2, 3, 0, 0, 1, 2, 3, 0, 0}, out)

	// gap spanning callback boundaries
	out = make([]int16, 3)
	fill(out)
	assert.Equal(t, []int16{1, 2, 3}, out)
	out = make([]int16, 1)
	fill(out)
	assert.Equal(t, []int16{0}, out)
	out = make([]int16, 2)
	fill(out)
	assert.Equal(t, []int16{0, 1}, out)
}

func TestPlayer_PlayStopsPrevious(t *testing.T) {
	dir := t.TempDir()
	writeCue(t, dir, core.CueRingback, 8000, 3)
	writeCue(t, dir, core.CueHold, 8000, 3)
	b := &fakeBackend{}
	p := New(b, dir)

	p.Play(core.CueRingback, true, 0)
	firstFill, first := b.last()
	p.Play(core.CueHold, true, 0)

	require.Eventually(t, first.isClosed, time.Second, 5*time.Millisecond)
	out := []int16{7, 7}
	firstFill(out)
	assert.Equal(t, []int16{0, 0}, out, "a stopped playback emits silence")

	cue, playing := p.Playing()
	assert.True(t, playing)
	assert.Equal(t, core.CueHold, cue)
}

func TestPlayer_StopIsSafeWhenIdle(t *testing.T) {
	p := New(&fakeBackend{}, t.TempDir())
	assert.NotPanics(t, func() {
		p.Stop()
		p.Stop()
	})
}

func TestPlayer_MissingCueOrDeviceIsSilent(t *testing.T) {
	dir := t.TempDir()
	b := &fakeBackend{}
	p := New(b, dir)

	p.Play(core.CueNoService, false, 0)
	assert.Equal(t, 0, b.opened())

	writeCue(t, dir, core.CueBusy, 8000, 3)
	b.failing = true
	assert.NotPanics(t, func() { p.Play(core.CueBusy, false, 0) })
	_, playing := p.Playing()
	assert.False(t, playing)
}

func TestPlayer_OutputDeviceAppliesToNextPlay(t *testing.T) {
	dir := t.TempDir()
	writeCue(t, dir, core.CueBusy, 8000, 3)
	b := &fakeBackend{}
	p := New(b, dir)

	p.SetOutputDevice("headset")
	p.Play(core.CueBusy, false, 0)
	assert.Equal(t, []string{"headset"}, b.refs)
}

func TestClip_SilenceFrames(t *testing.T) {
	c := &clip{sampleRate: 8000, byteRate: 16000, blockAlign: 2}
	assert.Equal(t, 8000, c.silenceFrames(1000))
	assert.Equal(t, 160, c.silenceFrames(20))
	assert.Equal(t, 0, c.silenceFrames(0))

	stereo := &clip{sampleRate: 8000, byteRate: 32000, blockAlign: 4}
	assert.Equal(t, 8000, stereo.silenceFrames(1000))
}
