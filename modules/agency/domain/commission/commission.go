package commission

import (
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Override status lifecycle. Payroll advances pending -> earned -> paid;
// a chargeback terminates any non-paid row.
const (
	StatusPending     = "pending"
	StatusEarned      = "earned"
	StatusPaid        = "paid"
	StatusChargedback = "chargedback"
)

// Event kinds. A write finalizes a base commission; a chargeback compensates
// a previous write for the same policy.
const (
	KindWrite      = "write"
	KindChargeback = "chargeback"
)

// Event is an immutable commission fact. It is created once when a policy's
// base commission is finalized and never mutated afterwards; reversals arrive
// as separate chargeback events.
type Event struct {
	TenantID      uuid.UUID
	ID            uuid.UUID
	SourceAgentID uuid.UUID
	PolicyID      uuid.UUID
	Kind          string
	BaseAmount    *money.Money
	OccurredAt    time.Time
	CreatedAt     time.Time
}

// Override is one beneficiary row fanned out from an Event. Contract levels,
// depth and amounts are snapshots taken at distribution time: a later
// reparent must never rewrite a historical financial record.
type Override struct {
	TenantID             uuid.UUID
	ID                   uuid.UUID
	EventID              uuid.UUID
	PolicyID             uuid.UUID
	SourceAgentID        uuid.UUID
	BeneficiaryAgentID   uuid.UUID
	HierarchyDepthAtTime int
	SourceContractLevel  int
	BeneficiaryContract  int
	BaseAmount           *money.Money
	OverrideRate         decimal.Decimal
	OverrideAmount       *money.Money
	Status               string
	ChargebackAt         *time.Time
	PaidAt               *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OverrideAmount applies a rate to a base commission, rounding half-up on the
// minor unit so repeated distribution of the same event is bit-identical.
func OverrideAmount(base *money.Money, rate decimal.Decimal) *money.Money {
	minor := decimal.NewFromInt(base.Amount()).Mul(rate).Round(0).IntPart()
	return money.New(minor, base.Currency().Code)
}

// CanTransition reports whether a payroll-driven status advance is legal.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusEarned || to == StatusPaid || to == StatusChargedback
	case StatusEarned:
		return to == StatusPaid || to == StatusChargedback
	default:
		return false
	}
}
