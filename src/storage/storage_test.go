package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/packager"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestStorageTestSuite(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}

type StorageTestSuite struct {
	suite.Suite
	ctx      context.Context
	config   *config.Config
	packager *packager.Packager
	provider *config.Provider
}

func (s *StorageTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.config = config.Default()
	s.config.Packager.ScratchDir = s.T().TempDir()
	s.packager = packager.NewPackager(s.config)
	s.provider = &config.Provider{Address: "f01000", ServiceUrl: "http://provider.test"}
}

func (s *StorageTestSuite) randomPayload(size int) []byte {
	payload := make([]byte, size)
	rnd := rand.New(rand.NewSource(7))
	rnd.Read(payload)
	return payload
}

func (s *StorageTestSuite) TestDirectPassThrough() {
	payload := s.randomPayload(4096)
	job := NewJob(s.provider, "probe.bin", payload)

	err := NewDirectStrategy().PreprocessData(s.ctx, job)
	require.Nil(s.T(), err)

	require.Equal(s.T(), payload, job.Payload)
	require.NotNil(s.T(), job.Metadata.Direct)
	require.Equal(s.T(), int64(len(payload)), job.Metadata.Direct.PayloadSize)

	sum := sha256.Sum256(payload)
	require.Equal(s.T(), hex.EncodeToString(sum[:]), job.Metadata.Direct.PayloadSha256)
}

func (s *StorageTestSuite) TestCarTransformsPayload() {
	payload := s.randomPayload(1 << 20)
	job := NewJob(s.provider, "probe.bin", payload)

	strategy := NewCarStrategy(s.config, s.packager)
	err := strategy.PreprocessData(s.ctx, job)
	require.Nil(s.T(), err)

	require.NotNil(s.T(), job.Package)
	require.Equal(s.T(), job.Package.Bytes, job.Payload)
	require.NotEqual(s.T(), payload, job.Payload)

	car := job.Metadata.Car
	require.NotNil(s.T(), car)
	require.Equal(s.T(), job.Package.RootCid.String(), car.RootCid)
	require.Equal(s.T(), car.BlockCount, len(car.BlockCids))
	require.Equal(s.T(), int64(len(job.Payload)), car.CarSize)
	require.NotEmpty(s.T(), car.PieceCid)
}

func (s *StorageTestSuite) TestCarValidatesOwnResult() {
	payload := s.randomPayload(1 << 20)
	job := NewJob(s.provider, "probe.bin", payload)

	strategy := NewCarStrategy(s.config, s.packager)
	err := strategy.PreprocessData(s.ctx, job)
	require.Nil(s.T(), err)

	err = strategy.ValidateResult(s.ctx, job)
	require.Nil(s.T(), err)
}

func (s *StorageTestSuite) TestCarPostProcessStampsPiece() {
	payload := s.randomPayload(4096)
	job := NewJob(s.provider, "probe.bin", payload)

	strategy := NewCarStrategy(s.config, s.packager)
	err := strategy.PreprocessData(s.ctx, job)
	require.Nil(s.T(), err)

	deal := &model.Deal{}
	err = strategy.PostProcess(s.ctx, job, deal)
	require.Nil(s.T(), err)

	require.Equal(s.T(), job.Package.PieceCid.String(), deal.PieceCid.String)
	require.Equal(s.T(), model.IpniStatePending, deal.IpniState)
}

func (s *StorageTestSuite) TestRegistryRunsCarBeforeDirect() {
	payload := s.randomPayload(1 << 20)
	job := NewJob(s.provider, "probe.bin", payload)

	registry, err := NewRegistry(s.config, s.packager)
	require.Nil(s.T(), err)

	err = registry.Run(s.ctx, job)
	require.Nil(s.T(), err)

	require.Equal(s.T(), []string{model.ServiceTypeCar, model.ServiceTypeDirect}, job.ServiceTypes)
	require.Equal(s.T(), true, job.Flags["car"])

	// The direct digest describes the uploaded body, which by then is the CAR
	sum := sha256.Sum256(job.Package.Bytes)
	require.Equal(s.T(), hex.EncodeToString(sum[:]), job.Metadata.Direct.PayloadSha256)
	require.NotNil(s.T(), job.Metadata.Car)
}

func (s *StorageTestSuite) TestRegistryRespectsToggles() {
	s.config.Storage.CarEnabled = false

	registry, err := NewRegistry(s.config, s.packager)
	require.Nil(s.T(), err)
	require.Len(s.T(), registry.Strategies(), 1)
	require.Equal(s.T(), model.ServiceTypeDirect, registry.Strategies()[0].Name())

	job := NewJob(s.provider, "probe.bin", s.randomPayload(4096))
	err = registry.Run(s.ctx, job)
	require.Nil(s.T(), err)
	require.Nil(s.T(), job.Package)
	require.Equal(s.T(), []string{model.ServiceTypeDirect}, job.ServiceTypes)
}

func (s *StorageTestSuite) TestRegistryNeedsAtLeastOneStrategy() {
	s.config.Storage.CarEnabled = false
	s.config.Storage.DirectEnabled = false

	_, err := NewRegistry(s.config, s.packager)
	require.NotNil(s.T(), err)
}
