package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/coverline/agency-sdk/pkg/composables"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

// inTx runs fn inside a tenant-scoped transaction. An existing transaction on
// the context is joined, so a distribution triggered inside another write
// shares its atomicity.
func inTx[T any](ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) (T, error)) (T, error) {
	return composables.InTenantTxResult(composables.WithTenantID(ctx, tenantID), fn)
}
