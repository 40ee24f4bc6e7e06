/*
gate.go - The budget gate on DRAFT -> SUBMITTED

PURPOSE:
  Pure evaluation of the one status transition that carries a domain
  invariant: a draft may only be submitted if its entries fit within the
  budget cap, or the override flag is set.

SCOPE:
  The gate fires ONLY when current == DRAFT and next == SUBMITTED.
  Every other transition bypasses it unconditionally, including
  SUBMITTED -> APPROVED, anything involving REJECTED, and edits that
  leave the status unchanged. Editing entries on a submitted report to
  any total never trips the gate.

PROPOSED STATE, NOT STORED STATE:
  The gate evaluates the post-merge values: entries, cap, and override
  as they WOULD be after the mutation. This applies identically at
  creation time (creating directly into SUBMITTED) and at update time.

OVERRIDE:
  budgetOverride == true skips the numeric check entirely. It is an
  unconditional escape valve, not a raised cap. Who may SET the override
  is a separate precondition enforced by the service before the gate runs.

SEE ALSO:
  - service.go: Runs the gate against post-merge state
  - metrics.go: IsOverBudget is informational and ignores the override
*/
package report

import "github.com/shopspring/decimal"

// =============================================================================
// GATE INPUT / DECISION
// =============================================================================

// GateInput carries the proposed transition and the proposed aggregate
// values it is evaluated against.
type GateInput struct {
	CurrentStatus  Status
	NextStatus     Status
	Entries        []Entry
	BudgetCap      decimal.Decimal
	BudgetOverride bool
}

// GateDecision is the outcome. Total and Cap are populated whenever the
// gate actually evaluated, so a denial can be surfaced with detail.
type GateDecision struct {
	Allowed bool
	Fired   bool
	Total   decimal.Decimal
	Cap     decimal.Decimal
}

// Err converts a denial into the error the service surfaces.
func (d GateDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &BudgetExceededError{Total: d.Total, Cap: d.Cap}
}

// =============================================================================
// EVALUATION
// =============================================================================

// EvaluateGate decides whether a status transition is permitted.
// Pure: exact decimal accumulation, no side effects.
func EvaluateGate(in GateInput) GateDecision {
	if in.CurrentStatus != StatusDraft || in.NextStatus != StatusSubmitted {
		return GateDecision{Allowed: true}
	}

	total := sumEntries(in.Entries)
	decision := GateDecision{
		Fired: true,
		Total: total,
		Cap:   in.BudgetCap,
	}

	if in.BudgetOverride {
		decision.Allowed = true
		return decision
	}

	decision.Allowed = !total.GreaterThan(in.BudgetCap)
	return decision
}
