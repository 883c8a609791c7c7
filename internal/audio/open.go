package audio

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Open returns the backend named in configuration. "none" never fails;
// "malgo" falls back to Null when the sound system cannot be opened.
func Open(name string) (Backend, func() error, error) {
	switch name {
	case "", "none":
		return Null{}, func() error { return nil }, nil
	case "malgo":
		m, err := NewMalgo()
		if err != nil {
			log.Warn().Err(err).Str("module", "audio").Msg("malgo unavailable, using null backend")
			return Null{}, func() error { return nil }, nil
		}
		return m, m.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown audio backend %q", name)
}
