// Package uuidgen injects ID generation for generated ski areas (spec.md
// §4.4 phase 7, §9 Open Question: "128-bit UUID source injected for
// testability").
package uuidgen

import "github.com/google/uuid"

type Generator interface {
	NewID() string
}

type uuidGenerator struct{}

func New() Generator {
	return uuidGenerator{}
}

func (uuidGenerator) NewID() string {
	return uuid.NewString()
}

// Fixed is a deterministic Generator for tests: it cycles through ids in
// order, wrapping around if exhausted.
type Fixed struct {
	ids []string
	n   int
}

func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

func (f *Fixed) NewID() string {
	if len(f.ids) == 0 {
		return uuid.NewString()
	}
	id := f.ids[f.n%len(f.ids)]
	f.n++
	return id
}
