package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/proxy"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
)

// Outcome of one retrieval probe across all applicable strategies
type Summary struct {
	TotalMethods      int
	SuccessfulMethods int
	FailedMethods     int
	FastestMethod     string

	// Failures where the bytes arrived but didn't match the deal
	ValidationFailures int

	// One row per attempted strategy, ready to be persisted
	Attempts []*model.Retrieval
}

// Content arrived but failed the strategy's check. Retrying the identical
// request cannot fix it.
type validationError struct {
	cause error
}

func (self *validationError) Error() string {
	return "validation failed: " + self.cause.Error()
}

func (self *validationError) Unwrap() error {
	return self.cause
}

// Runs the strategy set against a deal, in ascending priority order
type Executor struct {
	config     *config.Config
	log        *logrus.Entry
	proxies    *proxy.Pool
	fetcher    *fetcher
	strategies []Strategy
}

func NewExecutor(config *config.Config, proxies *proxy.Pool) (self *Executor) {
	self = new(Executor)
	self.config = config
	self.log = logger.NewSublogger("retrieval-executor")
	self.proxies = proxies
	self.fetcher = &fetcher{config: config}

	capabilities := NewCapabilities(config)
	self.strategies = []Strategy{
		NewPieceFetchStrategy(config, capabilities),
		NewBlockFetchStrategy(config, capabilities),
		NewBaselineStrategy(config),
	}
	slices.SortStableFunc(self.strategies, func(a, b Strategy) int {
		return a.Priority() - b.Priority()
	})
	return
}

func (self *Executor) Strategies() []Strategy {
	return self.strategies
}

// One strategy failing never suppresses the rest, each applicable one
// leaves exactly one retrieval row behind
func (self *Executor) Run(ctx context.Context, target *Target) (summary *Summary) {
	summary = new(Summary)
	var fastest time.Duration

	for _, strategy := range self.strategies {
		if ctx.Err() != nil {
			break
		}
		if !strategy.CanHandle(ctx, target) {
			self.log.WithField("strategy", strategy.Name()).
				WithField("deal_id", target.Deal.ID).
				Debug("Strategy not applicable to deal")
			continue
		}

		summary.TotalMethods += 1
		row, failure := self.runStrategy(ctx, strategy, target)
		summary.Attempts = append(summary.Attempts, row)

		var invalid *validationError
		if errors.As(failure, &invalid) {
			summary.ValidationFailures += 1
		}

		if row.Status == model.RetrievalStatusSuccess {
			summary.SuccessfulMethods += 1
			latency := time.Duration(row.LatencyMs.Int64) * time.Millisecond
			if summary.FastestMethod == "" || latency < fastest {
				fastest = latency
				summary.FastestMethod = strategy.Name()
			}
		} else {
			summary.FailedMethods += 1
		}
	}

	self.log.WithField("deal_id", target.Deal.ID).
		WithField("total", summary.TotalMethods).
		WithField("succeeded", summary.SuccessfulMethods).
		WithField("failed", summary.FailedMethods).
		WithField("fastest", summary.FastestMethod).
		Info("Retrieval probe finished")
	return
}

// Bounded attempts of one strategy, condensed into a single row.
// The row carries the last attempt's numbers and the retry count.
func (self *Executor) runStrategy(ctx context.Context, strategy Strategy, target *Target) (row *model.Retrieval, failure error) {
	row = &model.Retrieval{
		DealID:      target.Deal.ID,
		ServiceType: strategy.Name(),
		Status:      model.RetrievalStatusStarted,
		StartedAt:   time.Now(),
	}
	defer func() {
		row.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}()

	requests, err := strategy.ConstructRequests(target)
	if err == nil && len(requests) == 0 {
		err = xerrors.New("strategy produced no requests")
	}
	if err != nil {
		row.Status = model.RetrievalStatusFailed
		failure = err
		self.setError(row, err)
		return
	}
	row.Endpoint = requests[0].Url

	retryConfig := RetryConfig{
		MaxAttempts: self.config.Retrieval.MaxAttempts,
		Backoff:     self.config.Retrieval.AttemptBackoff,
	}
	if configurer, ok := strategy.(RetryConfigurer); ok {
		retryConfig = configurer.RetryConfig()
	}
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}

	for attempt := 0; attempt < retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			row.RetryCount += 1
			select {
			case <-ctx.Done():
				row.Status = model.RetrievalStatusFailed
				failure = ctx.Err()
				self.setError(row, ctx.Err())
				return
			case <-time.After(retryConfig.Backoff):
			}
		}

		stats, retryable, err := self.attempt(ctx, strategy, requests, target)
		self.record(row, stats)

		if err == nil {
			row.Status = model.RetrievalStatusSuccess
			failure = nil
			_ = row.ErrorMessage.Set(nil)
			return
		}

		row.Status = model.RetrievalStatusFailed
		failure = err
		self.setError(row, err)
		self.log.WithError(err).
			WithField("strategy", strategy.Name()).
			WithField("deal_id", target.Deal.ID).
			WithField("attempt", attempt).
			Warn("Retrieval attempt failed")

		if !retryable || ctx.Err() != nil {
			return
		}
	}
	return
}

// One attempt, every request through the same fresh proxy.
// A retry never reuses a possibly poisoned one.
func (self *Executor) attempt(ctx context.Context, strategy Strategy, requests []*Request, target *Target) (stats *fetchStats, retryable bool, err error) {
	stats = new(fetchStats)
	retryable = true

	proxyUrl, _ := self.proxies.Next()
	validator, hasValidator := strategy.(DataValidator)

	started := time.Now()
	defer func() {
		stats.Latency = time.Since(started)
	}()

	for i, request := range requests {
		data, statusCode, ttfb, ferr := self.fetcher.fetch(ctx, request, proxyUrl)
		if statusCode != 0 {
			stats.StatusCode = statusCode
		}
		stats.BytesRetrieved += int64(len(data))
		if i == 0 {
			stats.Ttfb = ttfb
		}

		if ferr != nil {
			err = ferr
			// Transport and read errors are transient, a 4xx rejection
			// of the identical request is not
			var rejected *statusError
			if errors.As(ferr, &rejected) {
				retryable = rejected.code >= 500
			}
			return
		}

		if hasValidator {
			if verr := validator.ValidateData(i, data, target); verr != nil {
				err = &validationError{cause: verr}
				retryable = false
				return
			}
		}
	}
	return
}

func (self *Executor) record(row *model.Retrieval, stats *fetchStats) {
	if stats == nil {
		return
	}
	row.BytesRetrieved = stats.BytesRetrieved
	row.LatencyMs = sql.NullInt64{Int64: stats.Latency.Milliseconds(), Valid: true}
	if stats.StatusCode != 0 {
		row.ResponseCode = sql.NullInt32{Int32: int32(stats.StatusCode), Valid: true}
	}
	if stats.Ttfb > 0 {
		row.TtfbMs = sql.NullInt64{Int64: stats.Ttfb.Milliseconds(), Valid: true}
	}
	if stats.Latency > 0 && stats.BytesRetrieved > 0 {
		row.ThroughputBps = sql.NullInt64{
			Int64: int64(float64(stats.BytesRetrieved) / stats.Latency.Seconds()),
			Valid: true,
		}
	}
}

func (self *Executor) setError(row *model.Retrieval, err error) {
	if err == nil {
		return
	}
	_ = row.ErrorMessage.Set(err.Error())
}
