package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestDelayTestSuite(t *testing.T) {
	suite.Run(t, new(DelayTestSuite))
}

type DelayTestSuite struct {
	suite.Suite
}

func (s *DelayTestSuite) TestAnchorsToLastRun() {
	now := time.Now()
	lastRunAt := now.Add(-5 * time.Minute)

	delay := initialDelay(lastRunAt, true, 600*time.Second, 2*time.Minute, now)
	require.Equal(s.T(), 300*time.Second, delay)
}

func (s *DelayTestSuite) TestFreshDeploymentUsesStartOffset() {
	delay := initialDelay(time.Time{}, false, 600*time.Second, 120*time.Second, time.Now())
	require.Equal(s.T(), 120*time.Second, delay)
}

func (s *DelayTestSuite) TestOverdueJobFiresImmediately() {
	now := time.Now()
	lastRunAt := now.Add(-20 * time.Minute)

	delay := initialDelay(lastRunAt, true, 600*time.Second, 2*time.Minute, now)
	require.Equal(s.T(), time.Duration(0), delay)
}

func (s *DelayTestSuite) TestExternalCompletionWins() {
	runStart := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	completion := runStart.Add(90 * time.Second)
	external := runStart.Add(30 * time.Second)

	anchor := nextAnchor(external, true, runStart, completion)
	require.Equal(s.T(), external, anchor)

	// The next delay comes from the external record, not the local clock
	delay := nextDelay(anchor, 600*time.Second, completion)
	require.Equal(s.T(), external.Add(600*time.Second).Sub(completion), delay)
}

func (s *DelayTestSuite) TestExternalBeforeRunStartIgnored() {
	runStart := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	completion := runStart.Add(90 * time.Second)
	external := runStart.Add(-time.Minute)

	anchor := nextAnchor(external, true, runStart, completion)
	require.Equal(s.T(), completion, anchor)
}

func (s *DelayTestSuite) TestNoExternalAnchorsToCompletion() {
	runStart := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	completion := runStart.Add(45 * time.Second)

	anchor := nextAnchor(time.Time{}, false, runStart, completion)
	require.Equal(s.T(), completion, anchor)
}

func (s *DelayTestSuite) TestPastAnchorClampsToZero() {
	now := time.Now()
	anchor := now.Add(-time.Hour)

	delay := nextDelay(anchor, 600*time.Second, now)
	require.Equal(s.T(), time.Duration(0), delay)
}
