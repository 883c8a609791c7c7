// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxNumberLen = 16
	MaxNameLen   = 36
)

var (
	ErrNumberEmpty   = errors.New("station number empty")
	ErrNumberTooLong = errors.New("station number too long")
	ErrNumberInvalid = errors.New("station number must be digits")
	ErrNameTooLong   = errors.New("station name too long")
)

// Station is a dialable identity on the line. It also serves as a
// directory entry.
type Station struct {
	Number string `json:"number" mapstructure:"number"`
	Name   string `json:"name" mapstructure:"name"`
}

// NewStation validates number and name; an empty name falls back to the number.
func NewStation(number, name string) (Station, error) {
	number = strings.TrimSpace(number)
	if err := ValidateNumber(number); err != nil {
		return Station{}, err
	}
	name = strings.TrimSpace(name)
	if len(name) > MaxNameLen {
		return Station{}, ErrNameTooLong
	}
	if name == "" {
		name = number
	}
	return Station{Number: number, Name: name}, nil
}

func ValidateNumber(number string) error {
	if len(number) == 0 {
		return ErrNumberEmpty
	}
	if len(number) > MaxNumberLen {
		return ErrNumberTooLong
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return ErrNumberInvalid
		}
	}
	return nil
}

func (s Station) String() string {
	if s.Name == "" || s.Name == s.Number {
		return s.Number
	}
	return s.Name + " (" + s.Number + ")"
}
