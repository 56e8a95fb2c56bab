package coordinator

import (
	"errors"
	"fmt"
)

// Reason says why a viewport changed. Every reason except ReasonPan is
// immediate and skips the debounce.
type Reason string

const (
	ReasonPan             Reason = "pan"
	ReasonInitial         Reason = "initial"
	ReasonUser            Reason = "user"
	ReasonSearchResult    Reason = "searchResult"
	ReasonPointOfInterest Reason = "pointOfInterest"
	ReasonCoordinateEntry Reason = "coordinateEntry"
	ReasonOverlaysEnabled Reason = "overlaysEnabled"
)

var ErrUnknownReason = errors.New("unknown recenter reason")

// Immediate reports whether the reason bypasses the pan debounce.
func (r Reason) Immediate() bool {
	return r != ReasonPan
}

// ParseRecenterReason maps the wire name of a recenter trigger to a Reason.
func ParseRecenterReason(s string) (Reason, error) {
	switch r := Reason(s); r {
	case ReasonUser, ReasonSearchResult, ReasonPointOfInterest, ReasonCoordinateEntry:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReason, s)
}
