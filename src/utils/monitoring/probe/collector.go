package monitor_probe

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	StorageJobsStarted    *prometheus.Desc
	StorageJobsFinished   *prometheus.Desc
	RetrievalJobsStarted  *prometheus.Desc
	RetrievalJobsFinished *prometheus.Desc
	MutexSkips            *prometheus.Desc
	DealsCreated          *prometheus.Desc
	DealsStored           *prometheus.Desc
	DealsComplete         *prometheus.Desc
	DealsFailed           *prometheus.Desc
	RetrievalAttempts     *prometheus.Desc
	RetrievalSuccesses    *prometheus.Desc
	RetrievalFailures     *prometheus.Desc
	BytesUploaded         *prometheus.Desc
	BytesRetrieved        *prometheus.Desc

	PackagingError    *prometheus.Desc
	DealCreationError *prometheus.Desc
	UploadError       *prometheus.Desc
	RetrievalError    *prometheus.Desc
	ValidationError   *prometheus.Desc
	WalletError       *prometheus.Desc
	DbError           *prometheus.Desc

	IpniDealsTakenFromDb *prometheus.Desc
	IpniStatusPolls      *prometheus.Desc
	IpniDealsAdvanced    *prometheus.Desc
	IpniDealsVerified    *prometheus.Desc
	IpniDealsFailed      *prometheus.Desc
	IpniCidsVerified     *prometheus.Desc
	IpniCidsUnverified   *prometheus.Desc
	IpniDbStateUpdated   *prometheus.Desc

	IpniProviderStatusError *prometheus.Desc
	IpniIndexerLookupError  *prometheus.Desc
	IpniDbStateUpdateError  *prometheus.Desc
}

func NewCollector() *Collector {
	labels := prometheus.Labels{
		"app": "probe",
	}

	return &Collector{
		StorageJobsStarted:    prometheus.NewDesc("storage_jobs_started", "", nil, labels),
		StorageJobsFinished:   prometheus.NewDesc("storage_jobs_finished", "", nil, labels),
		RetrievalJobsStarted:  prometheus.NewDesc("retrieval_jobs_started", "", nil, labels),
		RetrievalJobsFinished: prometheus.NewDesc("retrieval_jobs_finished", "", nil, labels),
		MutexSkips:            prometheus.NewDesc("mutex_skips", "", nil, labels),
		DealsCreated:          prometheus.NewDesc("deals_created", "", nil, labels),
		DealsStored:           prometheus.NewDesc("deals_stored", "", nil, labels),
		DealsComplete:         prometheus.NewDesc("deals_complete", "", nil, labels),
		DealsFailed:           prometheus.NewDesc("deals_failed", "", nil, labels),
		RetrievalAttempts:     prometheus.NewDesc("retrieval_attempts", "", nil, labels),
		RetrievalSuccesses:    prometheus.NewDesc("retrieval_successes", "", nil, labels),
		RetrievalFailures:     prometheus.NewDesc("retrieval_failures", "", nil, labels),
		BytesUploaded:         prometheus.NewDesc("bytes_uploaded", "", nil, labels),
		BytesRetrieved:        prometheus.NewDesc("bytes_retrieved", "", nil, labels),

		// Errors
		PackagingError:    prometheus.NewDesc("packaging_error", "", nil, labels),
		DealCreationError: prometheus.NewDesc("deal_creation_error", "", nil, labels),
		UploadError:       prometheus.NewDesc("upload_error", "", nil, labels),
		RetrievalError:    prometheus.NewDesc("retrieval_error", "", nil, labels),
		ValidationError:   prometheus.NewDesc("validation_error", "", nil, labels),
		WalletError:       prometheus.NewDesc("wallet_error", "", nil, labels),
		DbError:           prometheus.NewDesc("db_error", "", nil, labels),

		// Ipni verification
		IpniDealsTakenFromDb: prometheus.NewDesc("ipni_deals_taken_from_db", "", nil, labels),
		IpniStatusPolls:      prometheus.NewDesc("ipni_status_polls", "", nil, labels),
		IpniDealsAdvanced:    prometheus.NewDesc("ipni_deals_advanced", "", nil, labels),
		IpniDealsVerified:    prometheus.NewDesc("ipni_deals_verified", "", nil, labels),
		IpniDealsFailed:      prometheus.NewDesc("ipni_deals_failed", "", nil, labels),
		IpniCidsVerified:     prometheus.NewDesc("ipni_cids_verified", "", nil, labels),
		IpniCidsUnverified:   prometheus.NewDesc("ipni_cids_unverified", "", nil, labels),
		IpniDbStateUpdated:   prometheus.NewDesc("ipni_db_state_updated", "", nil, labels),

		IpniProviderStatusError: prometheus.NewDesc("ipni_provider_status_error", "", nil, labels),
		IpniIndexerLookupError:  prometheus.NewDesc("ipni_indexer_lookup_error", "", nil, labels),
		IpniDbStateUpdateError:  prometheus.NewDesc("ipni_db_state_update_error", "", nil, labels),
	}
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- self.StorageJobsStarted
	ch <- self.StorageJobsFinished
	ch <- self.RetrievalJobsStarted
	ch <- self.RetrievalJobsFinished
	ch <- self.MutexSkips
	ch <- self.DealsCreated
	ch <- self.DealsStored
	ch <- self.DealsComplete
	ch <- self.DealsFailed
	ch <- self.RetrievalAttempts
	ch <- self.RetrievalSuccesses
	ch <- self.RetrievalFailures
	ch <- self.BytesUploaded
	ch <- self.BytesRetrieved
	ch <- self.PackagingError
	ch <- self.DealCreationError
	ch <- self.UploadError
	ch <- self.RetrievalError
	ch <- self.ValidationError
	ch <- self.WalletError
	ch <- self.DbError
	ch <- self.IpniDealsTakenFromDb
	ch <- self.IpniStatusPolls
	ch <- self.IpniDealsAdvanced
	ch <- self.IpniDealsVerified
	ch <- self.IpniDealsFailed
	ch <- self.IpniCidsVerified
	ch <- self.IpniCidsUnverified
	ch <- self.IpniDbStateUpdated
	ch <- self.IpniProviderStatusError
	ch <- self.IpniIndexerLookupError
	ch <- self.IpniDbStateUpdateError
}

// Collect implements required collect function for all promehteus collectors
func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(self.StorageJobsStarted, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.StorageJobsStarted.Load()))
	ch <- prometheus.MustNewConstMetric(self.StorageJobsFinished, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.StorageJobsFinished.Load()))
	ch <- prometheus.MustNewConstMetric(self.RetrievalJobsStarted, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.RetrievalJobsStarted.Load()))
	ch <- prometheus.MustNewConstMetric(self.RetrievalJobsFinished, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.RetrievalJobsFinished.Load()))
	ch <- prometheus.MustNewConstMetric(self.MutexSkips, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.MutexSkips.Load()))
	ch <- prometheus.MustNewConstMetric(self.DealsCreated, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.DealsCreated.Load()))
	ch <- prometheus.MustNewConstMetric(self.DealsStored, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.DealsStored.Load()))
	ch <- prometheus.MustNewConstMetric(self.DealsComplete, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.DealsComplete.Load()))
	ch <- prometheus.MustNewConstMetric(self.DealsFailed, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.DealsFailed.Load()))
	ch <- prometheus.MustNewConstMetric(self.RetrievalAttempts, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.RetrievalAttempts.Load()))
	ch <- prometheus.MustNewConstMetric(self.RetrievalSuccesses, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.RetrievalSuccesses.Load()))
	ch <- prometheus.MustNewConstMetric(self.RetrievalFailures, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.RetrievalFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.BytesUploaded, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.BytesUploaded.Load()))
	ch <- prometheus.MustNewConstMetric(self.BytesRetrieved, prometheus.CounterValue, float64(self.monitor.Report.Probe.State.BytesRetrieved.Load()))
	ch <- prometheus.MustNewConstMetric(self.PackagingError, prometheus.CounterValue, float64(self.monitor.Report.Probe.Errors.PackagingError.Load()))
	ch <- prometheus.MustNewConstMetric(self.DealCreationError, prometheus.CounterValue, float64(self.monitor.Report.Probe.Errors.DealCreationError.Load()))
	ch <- prometheus.MustNewConstMetric(self.UploadError, prometheus.CounterValue, float64(self.monitor.Report.Probe.Errors.UploadError.Load()))
	ch <- prometheus.MustNewConstMetric(self.RetrievalError, prometheus.CounterValue, float64(self.monitor.Report.Probe.Errors.RetrievalError.Load()))
	ch <- prometheus.MustNewConstMetric(self.ValidationError, prometheus.CounterValue, float64(self.monitor.Report.Probe.Errors.ValidationError.Load()))
	ch <- prometheus.MustNewConstMetric(self.WalletError, prometheus.CounterValue, float64(self.monitor.Report.Probe.Errors.WalletError.Load()))
	ch <- prometheus.MustNewConstMetric(self.DbError, prometheus.CounterValue, float64(self.monitor.Report.Probe.Errors.DbError.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniDealsTakenFromDb, prometheus.CounterValue, float64(self.monitor.Report.Ipni.State.DealsTakenFromDb.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniStatusPolls, prometheus.CounterValue, float64(self.monitor.Report.Ipni.State.StatusPolls.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniDealsAdvanced, prometheus.CounterValue, float64(self.monitor.Report.Ipni.State.DealsAdvanced.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniDealsVerified, prometheus.CounterValue, float64(self.monitor.Report.Ipni.State.DealsVerified.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniDealsFailed, prometheus.CounterValue, float64(self.monitor.Report.Ipni.State.DealsFailed.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniCidsVerified, prometheus.CounterValue, float64(self.monitor.Report.Ipni.State.CidsVerified.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniCidsUnverified, prometheus.CounterValue, float64(self.monitor.Report.Ipni.State.CidsUnverified.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniDbStateUpdated, prometheus.CounterValue, float64(self.monitor.Report.Ipni.State.DbStateUpdated.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniProviderStatusError, prometheus.CounterValue, float64(self.monitor.Report.Ipni.Errors.ProviderStatusError.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniIndexerLookupError, prometheus.CounterValue, float64(self.monitor.Report.Ipni.Errors.IndexerLookupError.Load()))
	ch <- prometheus.MustNewConstMetric(self.IpniDbStateUpdateError, prometheus.CounterValue, float64(self.monitor.Report.Ipni.Errors.DbStateUpdateError.Load()))
}
