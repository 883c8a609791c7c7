package media

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/codec"
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/pion/rtp"
)

const (
	payloadTypePCMU = 0
	maxDatagram     = 1500
)

// datagramBinding sends RTP/PCMU packets straight to the peer's advertised
// endpoint. The socket is bound before the call is placed so its port can
// travel in the signaling message.
type datagramBinding struct {
	bind      string
	advertise string

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewDatagramTransport sends RTP over UDP. bind is the local listen
// address ("0.0.0.0:0" for any port); advertise is the host peers should
// send to and defaults to the bound host.
func NewDatagramTransport(backend audio.Backend, bind, advertise string) *Transport {
	return newTransport(backend, &datagramBinding{bind: bind, advertise: advertise})
}

func (b *datagramBinding) name() string { return "datagram" }

func (b *datagramBinding) localEndpoint() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		addr, err := net.ResolveUDPAddr("udp", b.bind)
		if err != nil {
			return "", fmt.Errorf("resolve bind address: %w", err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return "", fmt.Errorf("listen udp: %w", err)
		}
		b.conn = conn
	}
	local := b.conn.LocalAddr().(*net.UDPAddr)
	host := b.advertise
	if host == "" {
		host = local.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(local.Port)), nil
}

// dial hands the pre-bound socket to the link; the next call binds anew.
func (b *datagramBinding) dial(_ context.Context, route core.MediaRoute) (link, error) {
	if route.PeerMedia == "" {
		return nil, errors.New("peer did not advertise a media endpoint")
	}
	remote, err := net.ResolveUDPAddr("udp", route.PeerMedia)
	if err != nil {
		return nil, fmt.Errorf("resolve peer media %q: %w", route.PeerMedia, err)
	}
	if _, err := b.localEndpoint(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	return &datagramLink{
		conn:   conn,
		remote: remote,
		ssrc:   rand.Uint32(),
		seq:    uint16(rand.Uint32()),
		ts:     rand.Uint32(),
		buf:    make([]byte, maxDatagram),
	}, nil
}

type datagramLink struct {
	conn   *net.UDPConn
	remote *net.UDPAddr

	// sender state; only the send loop touches it.
	ssrc uint32
	seq  uint16
	ts   uint32

	buf []byte
}

func (l *datagramLink) Send(frame []byte) error {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadTypePCMU,
			SequenceNumber: l.seq,
			Timestamp:      l.ts,
			SSRC:           l.ssrc,
		},
		Payload: frame,
	}
	raw, err := pkt.Marshal()
	if err != nil {
		return err
	}
	l.seq++
	l.ts += codec.FrameSamples
	_, err = l.conn.WriteToUDP(raw, l.remote)
	return err
}

// Receive returns the next PCMU payload; other payload types and
// undecodable datagrams are skipped.
func (l *datagramLink) Receive() ([]byte, error) {
	for {
		n, _, err := l.conn.ReadFromUDP(l.buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, errors.Join(errLinkClosed, err)
			}
			return nil, err
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(l.buf[:n]); err != nil {
			continue
		}
		if pkt.PayloadType != payloadTypePCMU {
			continue
		}
		out := make([]byte, len(pkt.Payload))
		copy(out, pkt.Payload)
		return out, nil
	}
}

func (l *datagramLink) Close() error {
	return l.conn.Close()
}
