package aws

import (
	"errors"
	"fmt"

	smithy "github.com/aws/smithy-go"
)

// OperationError is an AWS API failure reduced to its error code and message
type OperationError struct {
	Operation string
	Code      string
	Message   string
	Err       error
}

func (e *OperationError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// apiError keeps the code and message of smithy API errors and wraps anything else
func apiError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return &OperationError{
			Operation: operation,
			Code:      ae.ErrorCode(),
			Message:   ae.ErrorMessage(),
			Err:       err,
		}
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}

// IsNotFound reports whether err is an EC2 "instance does not exist" error
func IsNotFound(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "InvalidInstanceID.NotFound"
}
