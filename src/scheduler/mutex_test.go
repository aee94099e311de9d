package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestMutexTestSuite(t *testing.T) {
	suite.Run(t, new(MutexTestSuite))
}

type MutexTestSuite struct {
	suite.Suite
	ctx   context.Context
	mock  sqlmock.Sqlmock
	mutex *Mutex
}

func (s *MutexTestSuite) SetupTest() {
	s.ctx = context.Background()

	sqlDB, mock, err := sqlmock.New()
	require.Nil(s.T(), err)
	s.mock = mock

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.Nil(s.T(), err)

	s.mutex = NewMutex(config.Default(), db)
}

func (s *MutexTestSuite) TearDownTest() {
	require.Nil(s.T(), s.mock.ExpectationsWereMet())
}

func (s *MutexTestSuite) claimedRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"provider_address", "job_type", "job_id", "hostname", "acquired_at", "updated_at"}).
		AddRow("f01000", "storage", "token", "probe-host", time.Now(), time.Now())
}

func (s *MutexTestSuite) TestAcquireClaimsFreeLease() {
	s.mock.ExpectQuery("INSERT INTO job_mutex").
		WithArgs("f01000", "storage", sqlmock.AnyArg(), sqlmock.AnyArg(), "600 seconds").
		WillReturnRows(s.claimedRow())

	lease, err := s.mutex.Acquire(s.ctx, "storage", "f01000")
	require.Nil(s.T(), err)
	require.NotNil(s.T(), lease)
	require.Equal(s.T(), "storage", lease.JobType)
	require.Equal(s.T(), "f01000", lease.ProviderAddress)
	require.NotEmpty(s.T(), lease.JobId)
}

func (s *MutexTestSuite) TestAcquireSkipsHeldLease() {
	s.mock.ExpectQuery("INSERT INTO job_mutex").
		WillReturnRows(sqlmock.NewRows([]string{"provider_address"}))

	lease, err := s.mutex.Acquire(s.ctx, "storage", "f01000")
	require.Equal(s.T(), ErrMutexHeld, err)
	require.Nil(s.T(), lease)
}

func (s *MutexTestSuite) TestReleaseDeletesOwnTokenOnly() {
	s.mock.ExpectQuery("INSERT INTO job_mutex").
		WillReturnRows(s.claimedRow())

	lease, err := s.mutex.Acquire(s.ctx, "storage", "f01000")
	require.Nil(s.T(), err)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`DELETE FROM "job_mutex"`).
		WithArgs(lease.ProviderAddress, lease.JobId).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	err = lease.Release(s.ctx)
	require.Nil(s.T(), err)
}

func (s *MutexTestSuite) TestReleaseAfterReclaimIsNoop() {
	s.mock.ExpectQuery("INSERT INTO job_mutex").
		WillReturnRows(s.claimedRow())

	lease, err := s.mutex.Acquire(s.ctx, "storage", "f01000")
	require.Nil(s.T(), err)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`DELETE FROM "job_mutex"`).
		WithArgs(lease.ProviderAddress, lease.JobId).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()

	err = lease.Release(s.ctx)
	require.Nil(s.T(), err)
}

func (s *MutexTestSuite) TestRenewRefreshesLiveness() {
	s.mock.ExpectQuery("INSERT INTO job_mutex").
		WillReturnRows(s.claimedRow())

	lease, err := s.mutex.Acquire(s.ctx, "storage", "f01000")
	require.Nil(s.T(), err)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "job_mutex"`).
		WithArgs(lease.ProviderAddress, lease.JobId).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	err = lease.Renew(s.ctx)
	require.Nil(s.T(), err)
}

func (s *MutexTestSuite) TestRenewDetectsLostLease() {
	s.mock.ExpectQuery("INSERT INTO job_mutex").
		WillReturnRows(s.claimedRow())

	lease, err := s.mutex.Acquire(s.ctx, "storage", "f01000")
	require.Nil(s.T(), err)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "job_mutex"`).
		WithArgs(lease.ProviderAddress, lease.JobId).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()

	err = lease.Renew(s.ctx)
	require.Equal(s.T(), ErrLeaseLost, err)
}
