package tone

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/youpy/go-wav"
)

var ErrUnsupportedWAV = errors.New("unsupported wav encoding")

const wavFormatPCM = 1

// clip is a decoded cue: mono PCM plus the file's timing parameters.
type clip struct {
	samples    []int16
	sampleRate int
	byteRate   int
	blockAlign int
}

func (c *clip) format() audio.Format {
	return audio.Format{SampleRate: c.sampleRate, Channels: 1}
}

// silenceFrames converts a gap in milliseconds into sample frames using
// the cue's byte rate, rounded down to whole blocks.
func (c *clip) silenceFrames(gapMs int) int {
	if gapMs <= 0 || c.blockAlign <= 0 {
		return 0
	}
	bytes := c.byteRate * gapMs / 1000
	return bytes / c.blockAlign
}

func loadClip(path string) (*clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := wav.NewReader(f)
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if format.AudioFormat != wavFormatPCM || (format.BitsPerSample != 16 && format.BitsPerSample != 8) {
		return nil, ErrUnsupportedWAV
	}

	c := &clip{
		sampleRate: int(format.SampleRate),
		byteRate:   int(format.ByteRate),
		blockAlign: int(format.BlockAlign),
	}
	for {
		samples, err := r.ReadSamples(2048)
		for _, s := range samples {
			v := s.Values[0]
			if format.BitsPerSample == 8 {
				v = (v - 128) << 8
			}
			c.samples = append(c.samples, int16(v))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wav samples: %w", err)
		}
		if len(samples) == 0 {
			break
		}
	}
	if len(c.samples) == 0 {
		return nil, fmt.Errorf("%s: no samples", path)
	}
	return c, nil
}
