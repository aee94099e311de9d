package probe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/filstation/spprobe/src/retrieval"
	"github.com/filstation/spprobe/src/scheduler"
	"github.com/filstation/spprobe/src/storage"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/model"
	monitor_probe "github.com/filstation/spprobe/src/utils/monitoring/probe"
	"github.com/filstation/spprobe/src/utils/packager"
	"github.com/filstation/spprobe/src/utils/provider"
	"github.com/filstation/spprobe/src/utils/proxy"
	"github.com/filstation/spprobe/src/utils/wallet"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestProbeSuite(t *testing.T) {
	suite.Run(t, new(ProbeTestSuite))
}

type ProbeTestSuite struct {
	suite.Suite

	ctx     context.Context
	config  *config.Config
	db      *gorm.DB
	mock    sqlmock.Sqlmock
	monitor *monitor_probe.Monitor
}

func (s *ProbeTestSuite) SetupTest() {
	s.ctx = context.Background()

	s.config = config.Default()
	s.config.Packager.ScratchDir = s.T().TempDir()
	s.config.Probe.PayloadSize = 4096
	s.config.Probe.StorePollInterval = 10 * time.Millisecond
	s.config.Probe.StoreTimeout = 2 * time.Second
	s.config.Probe.CreateMaxElapsedTime = 100 * time.Millisecond
	s.config.Probe.CreateMaxInterval = 50 * time.Millisecond
	s.config.ProviderClient.RateLimit = 1000

	sqlDB, mock, err := sqlmock.New()
	require.Nil(s.T(), err)
	s.mock = mock

	s.db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.Nil(s.T(), err)

	s.monitor = monitor_probe.NewMonitor()
}

func (s *ProbeTestSuite) TearDownTest() {
	require.Nil(s.T(), s.mock.ExpectationsWereMet())
}

func (s *ProbeTestSuite) newStorageRunner(providerUrl string) (*StorageRunner, *config.Provider) {
	s.config.Providers = []config.Provider{{Address: "f01000", ServiceUrl: providerUrl}}

	registry, err := storage.NewRegistry(s.config, packager.NewPackager(s.config))
	require.Nil(s.T(), err)

	runner := NewStorageRunner(s.config).
		WithDB(s.db).
		WithMonitor(s.monitor).
		WithMutex(scheduler.NewMutex(s.config, s.db)).
		WithWallet(wallet.NewClient(s.config)).
		WithRegistry(registry).
		WithProviderClient(provider.NewClient(s.config))
	return runner, &s.config.Providers[0]
}

func (s *ProbeTestSuite) newRetrievalRunner(providerUrl string) (*RetrievalRunner, *config.Provider) {
	s.config.Providers = []config.Provider{{Address: "f01000", ServiceUrl: providerUrl}}

	runner := NewRetrievalRunner(s.config).
		WithDB(s.db).
		WithMonitor(s.monitor).
		WithMutex(scheduler.NewMutex(s.config, s.db)).
		WithExecutor(retrieval.NewExecutor(s.config, proxy.NewPool(s.config)))
	return runner, &s.config.Providers[0]
}

func (s *ProbeTestSuite) expectMutexClaim(jobType string) {
	rows := sqlmock.NewRows([]string{"provider_address", "job_type", "job_id", "hostname", "acquired_at", "updated_at"}).
		AddRow("f01000", jobType, "token", "probe-host", time.Now(), time.Now())
	s.mock.ExpectQuery("INSERT INTO job_mutex").WillReturnRows(rows)
}

func (s *ProbeTestSuite) expectMutexRelease() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`DELETE FROM "job_mutex"`).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()
}

func (s *ProbeTestSuite) expectDealInsert() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`INSERT INTO "deals"`).WillReturnResult(sqlmock.NewResult(1, 1))
	s.mock.ExpectCommit()
}

func (s *ProbeTestSuite) expectDealUpdate() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "deals"`).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()
}

func (s *ProbeTestSuite) TestStorageProbeHappyPath() {
	var mtx sync.Mutex
	var created provider.CreateDealRequest
	var uploadContentType string
	var uploadedBytes int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mtx.Lock()
		defer mtx.Unlock()
		switch r.Method {
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&created)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(&provider.CreateDealResponse{DealId: created.DealId, Status: "accepted"})
		case http.MethodPut:
			uploadContentType = r.Header.Get("Content-Type")
			body, _ := io.ReadAll(r.Body)
			uploadedBytes = len(body)
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(&provider.DealStatusResponse{DealId: created.DealId, Status: provider.DealStateStored})
		}
	}))
	defer srv.Close()

	runner, sp := s.newStorageRunner(srv.URL)

	s.expectMutexClaim(JobTypeStorage)
	s.expectDealInsert()
	s.expectDealUpdate() // preprocessed
	s.expectDealUpdate() // submitted
	s.expectDealUpdate() // stored
	s.expectDealUpdate() // complete
	s.expectMutexRelease()

	err := runner.Run(s.ctx, sp)
	require.Nil(s.T(), err)

	mtx.Lock()
	defer mtx.Unlock()
	require.NotEmpty(s.T(), created.DealId)
	require.Equal(s.T(), []string{model.ServiceTypeCar, model.ServiceTypeDirect}, created.ServiceTypes)
	require.NotEmpty(s.T(), created.PieceCid)
	require.NotEmpty(s.T(), created.RootCid)
	require.Equal(s.T(), true, created.Flags["car"])
	require.Equal(s.T(), int64(4096), created.FileSize)

	// The car strategy replaces the payload before the upload
	require.Equal(s.T(), provider.ContentTypeCar, uploadContentType)
	require.Equal(s.T(), int(created.CarSize), uploadedBytes)

	report := s.monitor.GetReport().Probe
	require.Equal(s.T(), uint64(1), report.State.DealsCreated.Load())
	require.Equal(s.T(), uint64(1), report.State.DealsStored.Load())
	require.Equal(s.T(), uint64(1), report.State.DealsComplete.Load())
	require.Equal(s.T(), uint64(0), report.State.DealsFailed.Load())
	require.Equal(s.T(), uint64(uploadedBytes), report.State.BytesUploaded.Load())
}

func (s *ProbeTestSuite) TestStorageProbeFailsOnRejectedDeal() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	runner, sp := s.newStorageRunner(srv.URL)

	s.expectMutexClaim(JobTypeStorage)
	s.expectDealInsert()
	s.expectDealUpdate() // preprocessed
	s.expectDealUpdate() // failed
	s.expectMutexRelease()

	err := runner.Run(s.ctx, sp)
	require.NotNil(s.T(), err)

	report := s.monitor.GetReport().Probe
	require.Equal(s.T(), uint64(1), report.State.DealsFailed.Load())
	require.Equal(s.T(), uint64(1), report.Errors.DealCreationError.Load())
	require.Equal(s.T(), uint64(0), report.State.DealsComplete.Load())
}

func (s *ProbeTestSuite) TestStorageProbeSkipsWhenMutexHeld() {
	runner, sp := s.newStorageRunner("http://localhost:1")

	s.mock.ExpectQuery("INSERT INTO job_mutex").
		WillReturnRows(sqlmock.NewRows([]string{"provider_address"}))

	err := runner.Run(s.ctx, sp)
	require.Nil(s.T(), err)
	require.Equal(s.T(), uint64(1), s.monitor.GetReport().Probe.State.MutexSkips.Load())
	require.Equal(s.T(), uint64(1), s.monitor.GetReport().Probe.State.StorageJobsFinished.Load())
}

func (s *ProbeTestSuite) TestRetrievalProbePersistsAttempts() {
	payload := make([]byte, 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	runner, sp := s.newRetrievalRunner(srv.URL)

	metadata, err := json.Marshal(&model.DealMetadata{
		Direct: &model.DirectMetadata{PayloadSize: 2048, PayloadSha256: "unused"},
	})
	require.Nil(s.T(), err)

	dealRows := sqlmock.NewRows([]string{"id", "provider_address", "file_name", "file_size", "status", "service_types", "metadata", "created_at"}).
		AddRow(uuid.New().String(), "f01000", "spprobe-1.bin", 2048, "COMPLETE", "{direct}", metadata, time.Now())

	s.expectMutexClaim(JobTypeRetrieval)
	s.mock.ExpectQuery(`SELECT (.+) FROM "deals"`).WillReturnRows(dealRows)
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO "retrievals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	s.mock.ExpectCommit()
	s.expectMutexRelease()

	err = runner.Run(s.ctx, sp)
	require.Nil(s.T(), err)

	report := s.monitor.GetReport().Probe
	require.Equal(s.T(), uint64(1), report.State.RetrievalAttempts.Load())
	require.Equal(s.T(), uint64(1), report.State.RetrievalSuccesses.Load())
	require.Equal(s.T(), uint64(0), report.State.RetrievalFailures.Load())
	require.Equal(s.T(), uint64(2048), report.State.BytesRetrieved.Load())
}

func (s *ProbeTestSuite) TestRetrievalProbeNoFreshDeals() {
	runner, sp := s.newRetrievalRunner("http://localhost:1")

	s.expectMutexClaim(JobTypeRetrieval)
	s.mock.ExpectQuery(`SELECT (.+) FROM "deals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	s.expectMutexRelease()

	err := runner.Run(s.ctx, sp)
	require.Nil(s.T(), err)
	require.Equal(s.T(), uint64(0), s.monitor.GetReport().Probe.State.RetrievalAttempts.Load())
	require.Equal(s.T(), uint64(1), s.monitor.GetReport().Probe.State.RetrievalJobsFinished.Load())
}
