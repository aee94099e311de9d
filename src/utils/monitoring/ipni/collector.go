package monitor_ipni

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	DealsTakenFromDb *prometheus.Desc
	StatusPolls      *prometheus.Desc
	DealsAdvanced    *prometheus.Desc
	DealsVerified    *prometheus.Desc
	DealsFailed      *prometheus.Desc
	CidsVerified     *prometheus.Desc
	CidsUnverified   *prometheus.Desc
	DbStateUpdated   *prometheus.Desc

	ProviderStatusError *prometheus.Desc
	IndexerLookupError  *prometheus.Desc
	DbStateUpdateError  *prometheus.Desc
}

func NewCollector() *Collector {
	labels := prometheus.Labels{
		"app": "ipni-verifier",
	}

	return &Collector{
		DealsTakenFromDb: prometheus.NewDesc("ipni_deals_taken_from_db", "", nil, labels),
		StatusPolls:      prometheus.NewDesc("ipni_status_polls", "", nil, labels),
		DealsAdvanced:    prometheus.NewDesc("ipni_deals_advanced", "", nil, labels),
		DealsVerified:    prometheus.NewDesc("ipni_deals_verified", "", nil, labels),
		DealsFailed:      prometheus.NewDesc("ipni_deals_failed", "", nil, labels),
		CidsVerified:     prometheus.NewDesc("ipni_cids_verified", "", nil, labels),
		CidsUnverified:   prometheus.NewDesc("ipni_cids_unverified", "", nil, labels),
		DbStateUpdated:   prometheus.NewDesc("ipni_db_state_updated", "", nil, labels),

		// Errors
		ProviderStatusError: prometheus.NewDesc("ipni_provider_status_error", "", nil, labels),
		IndexerLookupError:  prometheus.NewDesc("ipni_indexer_lookup_error", "", nil, labels),
		DbStateUpdateError:  prometheus.NewDesc("ipni_db_state_update_error", "", nil, labels),
	}
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- self.DealsTakenFromDb
	ch <- self.StatusPolls
	ch <- self.DealsAdvanced
	ch <- self.DealsVerified
	ch <- self.DealsFailed
	ch <- self.CidsVerified
	ch <- self.CidsUnverified
	ch <- self.DbStateUpdated
	ch <- self.ProviderStatusError
	ch <- self.IndexerLookupError
	ch <- self.DbStateUpdateError
}

func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	state := &self.monitor.Report.Ipni.State
	errors := &self.monitor.Report.Ipni.Errors

	ch <- prometheus.MustNewConstMetric(self.DealsTakenFromDb, prometheus.CounterValue, float64(state.DealsTakenFromDb.Load()))
	ch <- prometheus.MustNewConstMetric(self.StatusPolls, prometheus.CounterValue, float64(state.StatusPolls.Load()))
	ch <- prometheus.MustNewConstMetric(self.DealsAdvanced, prometheus.CounterValue, float64(state.DealsAdvanced.Load()))
	ch <- prometheus.MustNewConstMetric(self.DealsVerified, prometheus.CounterValue, float64(state.DealsVerified.Load()))
	ch <- prometheus.MustNewConstMetric(self.DealsFailed, prometheus.CounterValue, float64(state.DealsFailed.Load()))
	ch <- prometheus.MustNewConstMetric(self.CidsVerified, prometheus.CounterValue, float64(state.CidsVerified.Load()))
	ch <- prometheus.MustNewConstMetric(self.CidsUnverified, prometheus.CounterValue, float64(state.CidsUnverified.Load()))
	ch <- prometheus.MustNewConstMetric(self.DbStateUpdated, prometheus.CounterValue, float64(state.DbStateUpdated.Load()))
	ch <- prometheus.MustNewConstMetric(self.ProviderStatusError, prometheus.CounterValue, float64(errors.ProviderStatusError.Load()))
	ch <- prometheus.MustNewConstMetric(self.IndexerLookupError, prometheus.CounterValue, float64(errors.IndexerLookupError.Load()))
	ch <- prometheus.MustNewConstMetric(self.DbStateUpdateError, prometheus.CounterValue, float64(errors.DbStateUpdateError.Load()))
}
