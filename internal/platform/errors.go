package platform

import (
	"errors"
	"fmt"
	"strings"
)

// benignRejection marks a rejection caused by the game window closing mid-run.
const benignRejection = "not active"

// RejectedError is a non-202 answer to a play submission.
type RejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("play rejected (status %d): %s", e.StatusCode, e.Reason)
}

// Benign reports whether the rejection only says the game is no longer active.
func (e *RejectedError) Benign() bool {
	return strings.Contains(strings.ToLower(e.Reason), benignRejection)
}

// Kind groups rejections for once-per-type logging.
func (e *RejectedError) Kind() string {
	if e.Benign() {
		return "game_not_active"
	}
	return fmt.Sprintf("http_%d", e.StatusCode)
}

// ConnectivityError wraps a transport failure talking to the platform.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is a platform transport failure.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
