package task

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retries the operation with an exponential backoff.
// Error callback may wrap the error with backoff.Permanent() to stop retrying.
type Retry struct {
	ctx                context.Context
	maxElapsedTime     time.Duration
	maxInterval        time.Duration
	acceptableDuration time.Duration
	onError            func(err error, isDurationAcceptable bool) error
}

func NewRetry() *Retry {
	return &Retry{
		ctx:                context.Background(),
		acceptableDuration: time.Minute,
	}
}

func (self *Retry) WithContext(ctx context.Context) *Retry {
	self.ctx = ctx
	return self
}

func (self *Retry) WithMaxElapsedTime(d time.Duration) *Retry {
	self.maxElapsedTime = d
	return self
}

func (self *Retry) WithMaxInterval(d time.Duration) *Retry {
	self.maxInterval = d
	return self
}

func (self *Retry) WithAcceptableDuration(d time.Duration) *Retry {
	self.acceptableDuration = d
	return self
}

func (self *Retry) WithOnError(f func(err error, isDurationAcceptable bool) error) *Retry {
	self.onError = f
	return self
}

func (self *Retry) Run(f func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = self.maxElapsedTime
	b.MaxInterval = self.maxInterval

	firstErrorTimestamp := time.Time{}

	run := func() error {
		err := f()
		if err == nil {
			// Reset the timer upon success
			firstErrorTimestamp = time.Time{}
			return nil
		}

		if firstErrorTimestamp.IsZero() {
			firstErrorTimestamp = time.Now()
		}

		if self.onError != nil {
			isDurationAcceptable := time.Since(firstErrorTimestamp) < self.acceptableDuration
			err = self.onError(err, isDurationAcceptable)
		}
		return err
	}

	return backoff.Retry(run, backoff.WithContext(b, self.ctx))
}
