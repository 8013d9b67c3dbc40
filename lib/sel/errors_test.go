package sel

import (
	"errors"
	"testing"

	"github.com/kraken-hpc/ipmisel/lib/mapping"
)

func TestErrors_lookup(t *testing.T) {
	_, err := mapping.FindSensorType("Flux Capacitor")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("FindSensorType error = %v, want %v", err, ErrInvalidArgument)
	}
	if !errors.Is(ErrNotFetched, ErrNotFound) {
		t.Errorf("ErrNotFetched does not match ErrNotFound")
	}
}
