package deployer

import "fmt"

type Stage string

const (
	StageResolve Stage = "resolve"
	StageDeploy  Stage = "deploy"
	StageConfirm Stage = "confirm"
)

// Error wraps any failure of a deployment run. Callers treat every stage the
// same; Stage only says how far the run got.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
