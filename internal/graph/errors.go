package graph

import (
	"errors"
	"fmt"
)

// ErrStepLimit is returned when a run would exceed its step ceiling.
var ErrStepLimit = errors.New("graph: step limit reached")

// RoutingError reports a classification outside the two allowed routes.
type RoutingError struct {
	Decision string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("graph: routing decision %q is not one of %s, %s", e.Decision, NodeWikiAgent, NodeFinalResponse)
}

// GenerationError wraps a failed or unusable generation call.
type GenerationError struct {
	Step Node
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("graph: %s: generation failed: %v", e.Step, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
