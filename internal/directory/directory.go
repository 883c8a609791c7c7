// Package directory is the static station lookup used to name peers.
package directory

import (
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/rs/zerolog/log"
)

// Static is a read-only, ordered directory. Safe for concurrent use
// because nothing mutates it after New.
type Static struct {
	entries  []domain.Station
	byNumber map[string]int
}

// New keeps the given order. Invalid entries are skipped; on duplicate
// numbers the first entry wins.
func New(entries []domain.Station) *Static {
	d := &Static{
		entries:  make([]domain.Station, 0, len(entries)),
		byNumber: make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		st, err := domain.NewStation(e.Number, e.Name)
		if err != nil {
			log.Warn().Err(err).Str("module", "directory").Str("number", e.Number).Msg("skip entry")
			continue
		}
		if _, dup := d.byNumber[st.Number]; dup {
			log.Warn().Str("module", "directory").Str("number", st.Number).Msg("duplicate entry")
			continue
		}
		d.byNumber[st.Number] = len(d.entries)
		d.entries = append(d.entries, st)
	}
	return d
}

func (d *Static) FindByNumber(number string) (domain.Station, bool) {
	i, ok := d.byNumber[number]
	if !ok {
		return domain.Station{}, false
	}
	return d.entries[i], true
}

func (d *Static) FindAll() []domain.Station {
	out := make([]domain.Station, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *Static) Len() int { return len(d.entries) }
