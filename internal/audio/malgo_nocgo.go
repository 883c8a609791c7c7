//go:build !cgo

package audio

// Malgo needs cgo; without it the constructor always fails.
type Malgo struct{ Null }

func NewMalgo() (*Malgo, error) { return nil, ErrUnavailable }

func (m *Malgo) Close() error { return nil }
