// Validation (§4.G validator role, §9 Open Question). Every validator runs
// once per cycle against the newly-populated state; its outcome is one of
// PASSED, FAILED, or ERROR. Grounded on Validators.java's ValidatorProxy,
// whose createValidationResult distinguishes a validator *reporting*
// failure (by throwing the framework's own validation-failure exception)
// from a validator *malfunctioning* (any other throwable) — translated
// here into a sentinel error type versus everything else.
package producer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ValidationResultType int

const (
	ValidationPassed ValidationResultType = iota
	ValidationFailed
	ValidationError
)

func (t ValidationResultType) String() string {
	switch t {
	case ValidationPassed:
		return "PASSED"
	case ValidationFailed:
		return "FAILED"
	case ValidationError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ValidationFailedError is the sentinel a Validator returns (or wraps via
// fmt.Errorf with %w) to report a data-correctness failure rather than a
// validator malfunction. Any other error, or a panic, classifies as ERROR
// instead of FAILED (SPEC_FULL §3.1).
type ValidationFailedError struct {
	Message string
}

func (e *ValidationFailedError) Error() string { return e.Message }

func NewValidationFailedError(format string, args ...any) *ValidationFailedError {
	return &ValidationFailedError{Message: fmt.Sprintf(format, args...)}
}

// Validator inspects the just-populated read state and reports PASSED by
// returning nil, FAILED by returning a *ValidationFailedError, or ERROR by
// returning (or panicking with) anything else.
type Validator interface {
	Name() string
	Validate(ctx context.Context, cycle ValidationContext) error
}

// ValidationContext is the read-only view of cycle state a Validator
// receives. State is typed `any`; RunCycle sets it to the cycle's new
// *rstate.ReadState.
type ValidationContext struct {
	Version int64
	State   any
}

type ValidationResult struct {
	Name    string
	Type    ValidationResultType
	Err     error
	Elapsed time.Duration
}

type ValidationStatus struct {
	Results []ValidationResult
}

func (s ValidationStatus) Passed() bool {
	for _, r := range s.Results {
		if r.Type != ValidationPassed {
			return false
		}
	}
	return true
}

func runValidators(ctx context.Context, validators []Validator, cycle ValidationContext, now func() time.Time) ValidationStatus {
	status := ValidationStatus{Results: make([]ValidationResult, 0, len(validators))}
	for _, v := range validators {
		status.Results = append(status.Results, runOneValidator(ctx, v, cycle, now))
	}
	return status
}

func runOneValidator(ctx context.Context, v Validator, cycle ValidationContext, now func() time.Time) (result ValidationResult) {
	st := newStatus(now)
	result = ValidationResult{Name: v.Name(), Type: ValidationPassed}
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			result.Type, result.Err = classifyValidatorError(err)
		}
		result.Elapsed = st.elapsed(now)
	}()

	if err := v.Validate(ctx, cycle); err != nil {
		result.Type, result.Err = classifyValidatorError(err)
	}
	return result
}

// classifyValidatorError resolves SPEC_FULL §3.1: an error that Is a
// *ValidationFailedError reports FAILED; anything else reports ERROR.
func classifyValidatorError(err error) (ValidationResultType, error) {
	var failed *ValidationFailedError
	if errors.As(err, &failed) {
		return ValidationFailed, err
	}
	return ValidationError, err
}
