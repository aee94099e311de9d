package report

import (
	"go.uber.org/atomic"
)

type IpniErrors struct {
	ProviderStatusError atomic.Uint64 `json:"provider_status_error"`
	IndexerLookupError  atomic.Uint64 `json:"indexer_lookup_error"`
	DbStateUpdateError  atomic.Uint64 `json:"db_state_update_error"`
}

type IpniState struct {
	DealsTakenFromDb atomic.Uint64 `json:"deals_taken_from_db"`
	StatusPolls      atomic.Uint64 `json:"status_polls"`
	DealsAdvanced    atomic.Uint64 `json:"deals_advanced"`
	DealsVerified    atomic.Uint64 `json:"deals_verified"`
	DealsFailed      atomic.Uint64 `json:"deals_failed"`
	CidsVerified     atomic.Uint64 `json:"cids_verified"`
	CidsUnverified   atomic.Uint64 `json:"cids_unverified"`
	DbStateUpdated   atomic.Uint64 `json:"db_state_updated"`
}

type IpniReport struct {
	State  IpniState  `json:"state"`
	Errors IpniErrors `json:"errors"`
}
