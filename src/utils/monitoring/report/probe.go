package report

import (
	"go.uber.org/atomic"
)

type ProbeErrors struct {
	PackagingError    atomic.Uint64 `json:"packaging_error"`
	DealCreationError atomic.Uint64 `json:"deal_creation_error"`
	UploadError       atomic.Uint64 `json:"upload_error"`
	RetrievalError    atomic.Uint64 `json:"retrieval_error"`
	ValidationError   atomic.Uint64 `json:"validation_error"`
	WalletError       atomic.Uint64 `json:"wallet_error"`
	DbError           atomic.Uint64 `json:"db_error"`
}

type ProbeState struct {
	StorageJobsStarted    atomic.Uint64 `json:"storage_jobs_started"`
	StorageJobsFinished   atomic.Uint64 `json:"storage_jobs_finished"`
	RetrievalJobsStarted  atomic.Uint64 `json:"retrieval_jobs_started"`
	RetrievalJobsFinished atomic.Uint64 `json:"retrieval_jobs_finished"`
	MutexSkips            atomic.Uint64 `json:"mutex_skips"`
	DealsCreated          atomic.Uint64 `json:"deals_created"`
	DealsStored           atomic.Uint64 `json:"deals_stored"`
	DealsComplete         atomic.Uint64 `json:"deals_complete"`
	DealsFailed           atomic.Uint64 `json:"deals_failed"`
	RetrievalAttempts     atomic.Uint64 `json:"retrieval_attempts"`
	RetrievalSuccesses    atomic.Uint64 `json:"retrieval_successes"`
	RetrievalFailures     atomic.Uint64 `json:"retrieval_failures"`
	BytesUploaded         atomic.Uint64 `json:"bytes_uploaded"`
	BytesRetrieved        atomic.Uint64 `json:"bytes_retrieved"`
}

type ProbeReport struct {
	State  ProbeState  `json:"state"`
	Errors ProbeErrors `json:"errors"`
}
