// Package linear provides fixed-size linearized factors and their
// accumulation into a shared symmetric block information matrix.
package linear

import "github.com/pkg/errors"

// Key identifies a variable in the estimation problem. Keys are opaque:
// ordering among variables is supplied externally through a Slots table.
type Key uint64

// Slots maps each variable key to its block position in the shared matrix
// and flat-array layouts.
type Slots map[Key]int

// Slot returns the block position of key, or an error if the key is not in
// the table.
func (s Slots) Slot(key Key) (int, error) {
	slot, ok := s[key]
	if !ok {
		return 0, errors.Errorf("variable %d has no slot", key)
	}
	return slot, nil
}
