package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/task"
)

// One recurring job, optionally partitioned per provider
type Job struct {
	Type            string
	ProviderAddress string
	Interval        time.Duration
	StartOffset     time.Duration
	Run             func(ctx context.Context) error
}

// Fires registered jobs on self-rearming one-shot timers anchored on the
// durable schedule state. Correctness under concurrent replicas is the
// job mutex's responsibility, the scheduler only decides when to fire.
type Scheduler struct {
	*task.Task

	store *ScheduleStore
}

func NewScheduler(config *config.Config) (self *Scheduler) {
	self = new(Scheduler)
	self.Task = task.NewTask(config, "scheduler")
	return
}

func (self *Scheduler) WithStore(store *ScheduleStore) *Scheduler {
	self.store = store
	return self
}

func (self *Scheduler) WithJob(job Job) *Scheduler {
	self.Task = self.Task.WithSubtaskFunc(func() error {
		self.loop(job)
		return nil
	})
	return self
}

func (self *Scheduler) loop(job Job) {
	var timer *time.Timer
	timer = time.NewTimer(self.initialArm(job))
	defer timer.Stop()

	for {
		select {
		case <-self.StopChannel:
			return
		case <-timer.C:
		}

		// Every fire is a fresh one-shot timer, drift never compounds
		timer = time.NewTimer(self.fire(job))
	}
}

func (self *Scheduler) initialArm(job Job) (delay time.Duration) {
	lastRunAt, ok, err := self.store.GetLastRunAt(self.Ctx, job.Type, job.ProviderAddress)
	if err != nil {
		self.Log.WithError(err).WithField("job", job.Type).WithField("provider", job.ProviderAddress).
			Error("Failed to read schedule state, falling back to start offset")
		ok = false
	}

	delay = initialDelay(lastRunAt, ok, job.Interval, job.StartOffset, time.Now())

	self.Log.WithField("job", job.Type).
		WithField("provider", job.ProviderAddress).
		WithField("delay", delay.String()).
		Info("Armed job")
	return
}

// Runs the job once and computes the delay until the next fire.
// A failing run is logged and rescheduled on the normal cadence.
func (self *Scheduler) fire(job Job) (delay time.Duration) {
	paused, err := self.store.IsPaused(self.Ctx, job.Type, job.ProviderAddress)
	if err != nil {
		self.Log.WithError(err).WithField("job", job.Type).Error("Failed to read paused flag")
	}
	if paused {
		self.Log.WithField("job", job.Type).WithField("provider", job.ProviderAddress).Debug("Job paused, skipping")
		return job.Interval
	}

	runStart := time.Now()

	err = self.runBody(job)
	if err != nil {
		self.Log.WithError(err).
			WithField("job", job.Type).
			WithField("provider", job.ProviderAddress).
			Error("Job run failed")
	}

	completion := time.Now()

	// Another replica may have completed first, its record wins
	external, ok, err := self.store.GetLastRunAt(self.Ctx, job.Type, job.ProviderAddress)
	if err != nil {
		self.Log.WithError(err).WithField("job", job.Type).Error("Failed to read schedule state")
		ok = false
	}
	anchor := nextAnchor(external, ok, runStart, completion)

	err = self.store.RecordRun(self.Ctx, job.Type, job.ProviderAddress, job.Interval, completion, anchor.Add(job.Interval))
	if err != nil {
		self.Log.WithError(err).WithField("job", job.Type).Error("Failed to record run")
	}

	return nextDelay(anchor, job.Interval, time.Now())
}

func (self *Scheduler) runBody(job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return job.Run(self.Ctx)
}
