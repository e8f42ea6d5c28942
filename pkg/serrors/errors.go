package serrors

import "fmt"

// Base is a coded error shared across packages that do not want to depend on
// the service layer's ServiceError.
type Base struct {
	Code    string
	Message string
	Details string
}

func (e *Base) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
}

func NewError(code, message, details string) *Base {
	return &Base{Code: code, Message: message, Details: details}
}

func WithDetails(base *Base, details string) *Base {
	return &Base{Code: base.Code, Message: base.Message, Details: details}
}
