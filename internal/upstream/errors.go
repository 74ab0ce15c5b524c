package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the identity cannot be used for an authenticated
	// call right now. Another identity may still succeed.
	ErrUnavailable = errors.New("identity unavailable")

	// ErrMaintenance means the game services are in scheduled downtime. Every
	// identity fails the same way until it ends.
	ErrMaintenance = errors.New("upstream in scheduled maintenance")

	// ErrNotInMatch means the player has no match in progress.
	ErrNotInMatch = errors.New("player is not in a match")
)

// ContractError reports a response that breaks the upstream contract: an
// unexpected HTTP status, an envelope status other than 200, or a body of the
// wrong shape. It is not retried.
type ContractError struct {
	Endpoint   string
	StatusCode int
	Reason     string
}

func (e *ContractError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream contract violation at %s (status %d): %s", e.Endpoint, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("upstream contract violation at %s: %s", e.Endpoint, e.Reason)
}

// IsContractError reports whether err wraps a ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
