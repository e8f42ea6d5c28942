package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func mapPgError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, "AGENCY_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		switch pgErr.ConstraintName {
		case "agents_tenant_id_agent_code_key":
			return newServiceError(http.StatusConflict, "AGENCY_CODE_CONFLICT", "agent code already exists", err)
		case "agents_tenant_id_email_key":
			return newServiceError(http.StatusConflict, "AGENCY_EMAIL_CONFLICT", "agent email already exists", err)
		case "commission_events_idempotence_key":
			// A concurrent distribution of the same event won the race; the
			// caller retries and hits the replay path.
			return newServiceError(http.StatusConflict, "AGENCY_ALREADY_DISTRIBUTED", "event already distributed", err)
		case "override_commissions_event_beneficiary_key":
			return newServiceError(http.StatusConflict, "AGENCY_ALREADY_DISTRIBUTED", "override already emitted for beneficiary", err)
		default:
			return newServiceError(http.StatusConflict, "AGENCY_CONFLICT", "unique constraint violated", err)
		}
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, "AGENCY_REFERENCE_NOT_FOUND", "referenced row not found", err)
	case "23514": // check_violation
		recordWriteConflict("check")
		return newServiceError(http.StatusUnprocessableEntity, "AGENCY_INVALID_BODY", "check constraint violated", err)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return newServiceError(http.StatusConflict, "AGENCY_CONCURRENT_MODIFICATION", "concurrent modification, retry", err)
	default:
		return newServiceError(http.StatusInternalServerError, "AGENCY_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
