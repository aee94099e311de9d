package ipni

import (
	"github.com/filstation/spprobe/src/utils/model"

	"github.com/google/uuid"
)

// Outcome of checking one deal, flows from the checker to the store
type StateUpdate struct {
	DealId uuid.UUID
	State  model.IpniState

	// Status polls spent on this check, added to the deal's total
	Polls int

	Verified   int
	Unverified int

	// nil when this check produced no new verification pass
	Report *VerificationReport
}
