package crew

import (
	"fmt"

	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/geocode"
)

// Workflow failures. Each is distinct under errors.Is; the HTTP layer maps
// them to status codes and stable error discriminators.
var (
	ErrWorkerNotFound = errors.New("worker not found")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobFull        = errors.New("job is full")
	ErrMissingAddress = errors.New("job has no origin address")
)

// DistanceError is returned when a worker clocks in outside the radius.
type DistanceError struct {
	DistanceMiles float64
	RadiusMiles   float64
}

func (e *DistanceError) Error() string {
	return fmt.Sprintf("worker is %.2f miles from the job site (limit %.2f)", e.DistanceMiles, e.RadiusMiles)
}

// IsCallerCorrectable reports whether err is an expected outcome the caller
// can act on, as opposed to a server or upstream failure.
func IsCallerCorrectable(err error) bool {
	var distErr *DistanceError
	return errors.As(err, &distErr) ||
		errors.IsAny(err, ErrWorkerNotFound, ErrJobNotFound, ErrJobFull, ErrMissingAddress,
			geocode.ErrAddressNotResolved, errors.ErrInvalidRequest)
}
