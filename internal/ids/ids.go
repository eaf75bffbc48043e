// Package ids issues the time-ordered identifiers used for rows and tokens.
package ids

import "github.com/google/uuid"

// Provider issues unique string identifiers.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Sequence replays a fixed list of identifiers. It is meant for tests.
type Sequence struct {
	values []string
	index  int
}

// NewSequence returns a Provider yielding values in order.
func NewSequence(values ...string) *Sequence {
	return &Sequence{values: append([]string(nil), values...)}
}

func (s *Sequence) NewID() (string, error) {
	if s.index >= len(s.values) {
		return "", errExhausted
	}
	value := s.values[s.index]
	s.index++
	return value, nil
}
