package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	sig "github.com/dkeye/RailPhone/internal/adapters/signal"
	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/config"
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/directory"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/dkeye/RailPhone/internal/logging"
	"github.com/dkeye/RailPhone/internal/media"
	"github.com/dkeye/RailPhone/internal/phone"
	"github.com/dkeye/RailPhone/internal/tone"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("phone stopped with error")
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("railphone-phone", pflag.ExitOnError)
	cfgFile := fs.String("config", "phone.yaml", "path to the phone configuration file")
	fs.String("relay", "", "relay base address (overrides relay_addr)")
	fs.String("number", "", "station number (overrides station.number)")
	fs.String("name", "", "station display name (overrides station.name)")
	fs.String("transport", "", "media transport: stream or datagram")
	_ = fs.Parse(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Bootstrap()
	cfg, err := config.LoadPhone(*cfgFile, fs)
	if err != nil {
		return err
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	station, err := domain.NewStation(cfg.Station.Number, cfg.Station.Name)
	if err != nil {
		return fmt.Errorf("station: %w", err)
	}

	backend, closeBackend, err := audio.Open(cfg.Audio.Backend)
	if err != nil {
		return err
	}
	defer func() { _ = closeBackend() }()

	dir := directory.New(cfg.Directory)
	transport, err := newTransport(cfg, backend)
	if err != nil {
		return err
	}

	coord := phone.New(phone.Options{
		Signal:           sig.NewClient(cfg.ReconnectInterval),
		Media:            transport,
		Tones:            tone.New(backend, cfg.Cues.Dir),
		Directory:        dir,
		RelayAddr:        cfg.RelayAddr,
		Audio:            cfg.Audio.Selection(),
		RingGapMs:        cfg.Cues.RingGap,
		HoldGapMs:        cfg.Cues.HoldGap,
		BusyDisplayDelay: cfg.BusyDisplayDelay,
	})
	defer func() { _ = coord.Close() }()

	out := &lockedWriter{w: os.Stdout}
	con := &console{ctl: coord, backend: backend, dir: dir, audio: cfg.Audio.Selection(), out: out}
	notes, unsubscribe := coord.Subscribe()
	defer unsubscribe()

	if err := coord.Login(ctx, station); err != nil {
		// The signaling channel keeps retrying; the phone stays usable offline.
		log.Warn().Err(err).Str("relay", cfg.RelayAddr).Msg("relay not reachable yet")
	}
	log.Info().Str("station", station.String()).Str("transport", cfg.Transport).Msg("RailPhone ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return con.run(gctx, os.Stdin)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case n, ok := <-notes:
				if !ok {
					return nil
				}
				con.printNotification(n)
			}
		}
	})
	return g.Wait()
}

func newTransport(cfg *config.PhoneConfig, backend audio.Backend) (core.MediaTransport, error) {
	switch cfg.Transport {
	case "stream":
		return media.NewStreamTransport(backend, nil), nil
	case "datagram":
		return media.NewDatagramTransport(backend, cfg.Datagram.Bind, cfg.Datagram.Advertise), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// lockedWriter serializes console output from the command loop and the
// notification printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
