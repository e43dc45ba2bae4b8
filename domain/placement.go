package domain

import (
	"comm-rendezvous/errors"
	"fmt"
	"strings"
)

// Placement tells which party originates and stores the authoritative group identifier.
type Placement string

const (
	PlacementClient    Placement = "client"
	PlacementWorker    Placement = "worker"
	PlacementScheduler Placement = "scheduler"
)

// Placements lists every supported placement.
var Placements = []Placement{PlacementClient, PlacementWorker, PlacementScheduler}

func ParsePlacement(s string) (Placement, error) {
	switch p := Placement(strings.ToLower(strings.TrimSpace(s))); p {
	case PlacementClient, PlacementWorker, PlacementScheduler:
		return p, nil
	case "":
		return PlacementClient, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownPlacement, s)
	}
}

func (p Placement) String() string {
	return string(p)
}
