//go:build cgo

package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// Malgo drives sound cards through miniaudio.
type Malgo struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

func NewMalgo() (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.Debug().Str("module", "audio.malgo").Msg(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Malgo{ctx: ctx}, nil
}

func (m *Malgo) InputDevices() ([]DeviceInfo, error)  { return m.list(malgo.Capture) }
func (m *Malgo) OutputDevices() ([]DeviceInfo, error) { return m.list(malgo.Playback) }

func (m *Malgo) list(kind malgo.DeviceType) ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{ID: info.ID.String(), Name: info.Name()})
	}
	return out, nil
}

func (m *Malgo) lookup(kind malgo.DeviceType, ref string) (*malgo.DeviceID, error) {
	if ref == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].ID.String() == ref || infos[i].Name() == ref {
			id := infos[i].ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, ref)
}

func (m *Malgo) OpenCapture(ref string, f Format, onSamples func([]int16)) (Stream, error) {
	id, err := m.lookup(malgo.Capture, ref)
	if err != nil {
		return nil, err
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Alsa.NoMMap = 1
	if id != nil {
		cfg.Capture.DeviceID = id.Pointer()
	}

	var scratch []int16
	cb := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			scratch = BytesToSamples(scratch[:0], input)
			onSamples(scratch)
		},
	}
	return m.start(cfg, cb)
}

func (m *Malgo) OpenPlayback(ref string, f Format, fill func([]int16)) (Stream, error) {
	id, err := m.lookup(malgo.Playback, ref)
	if err != nil {
		return nil, err
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Alsa.NoMMap = 1
	if id != nil {
		cfg.Playback.DeviceID = id.Pointer()
	}

	var scratch []int16
	cb := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			n := len(output) / 2
			if cap(scratch) < n {
				scratch = make([]int16, n)
			}
			scratch = scratch[:n]
			fill(scratch)
			SamplesToBytes(output, scratch)
		},
	}
	return m.start(cfg, cb)
}

func (m *Malgo) start(cfg malgo.DeviceConfig, cb malgo.DeviceCallbacks) (Stream, error) {
	dev, err := malgo.InitDevice(m.ctx.Context, cfg, cb)
	if err != nil {
		return nil, err
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, err
	}
	return &malgoStream{dev: dev}, nil
}

func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

type malgoStream struct {
	once sync.Once
	dev  *malgo.Device
}

func (s *malgoStream) Close() error {
	s.once.Do(func() {
		s.dev.Uninit()
	})
	return nil
}
