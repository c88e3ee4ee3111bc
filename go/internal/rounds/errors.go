package rounds

import "errors"

// ErrSimulationNotFound is returned when the referenced simulation row does not exist.
var ErrSimulationNotFound = errors.New("simulation not found")
