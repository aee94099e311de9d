package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/packager"
	"github.com/filstation/spprobe/src/utils/proxy"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
)

func TestRetrievalTestSuite(t *testing.T) {
	suite.Run(t, new(RetrievalTestSuite))
}

type RetrievalTestSuite struct {
	suite.Suite
	ctx    context.Context
	config *config.Config
}

func (s *RetrievalTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.config = config.Default()
	s.config.Retrieval.MaxAttempts = 1
	s.config.Retrieval.AttemptBackoff = 10 * time.Millisecond
	s.config.Retrieval.InactivityTimeout = 2 * time.Second
	s.config.Retrieval.ConnectTimeout = 2 * time.Second
	s.config.Retrieval.TransferTimeout = 10 * time.Second
	s.config.Packager.ScratchDir = s.T().TempDir()
}

func (s *RetrievalTestSuite) newExecutor() *Executor {
	return NewExecutor(s.config, proxy.NewPool(s.config))
}

func (s *RetrievalTestSuite) newTarget(serviceUrl string, metadata model.DealMetadata, serviceTypes ...string) *Target {
	return &Target{
		Deal: &model.Deal{
			ID:              uuid.New(),
			ProviderAddress: "f01000",
			FileName:        "probe.bin",
			Status:          model.DealStatusStored,
			ServiceTypes:    pq.StringArray(serviceTypes),
		},
		Provider: &config.Provider{Address: "f01000", ServiceUrl: serviceUrl},
		Metadata: metadata,
	}
}

func (s *RetrievalTestSuite) randomPayload(size int) []byte {
	payload := make([]byte, size)
	rnd := rand.New(rand.NewSource(11))
	rnd.Read(payload)
	return payload
}

func (s *RetrievalTestSuite) buildPackage(payload []byte) *packager.ContentPackage {
	pkg, err := packager.NewPackager(s.config).Build(s.ctx, "probe.bin", payload)
	require.Nil(s.T(), err)
	return pkg
}

func metadataFor(pkg *packager.ContentPackage, uploaded []byte) model.DealMetadata {
	sum := sha256.Sum256(uploaded)
	return model.DealMetadata{
		Direct: &model.DirectMetadata{
			PayloadSize:   int64(len(uploaded)),
			PayloadSha256: hex.EncodeToString(sum[:]),
		},
		Car: &model.CarMetadata{
			RootCid:        pkg.RootCid.String(),
			BlockCids:      pkg.BlockCidStrings(),
			BlockCount:     pkg.BlockCount,
			TotalBlockSize: pkg.TotalBlockSize,
			CarSize:        pkg.CarSize(),
			PieceCid:       pkg.PieceCid.String(),
		},
	}
}

// All three strategies applicable, the two verified ones serve errors,
// only the baseline answers
func (s *RetrievalTestSuite) TestPriorityFallback() {
	payload := s.randomPayload(4096)
	pkg := s.buildPackage(payload)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/piece/"), strings.HasPrefix(r.URL.Path, "/ipfs/"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write(pkg.Bytes)
		}
	}))
	defer ts.Close()

	target := s.newTarget(ts.URL, metadataFor(pkg, pkg.Bytes), model.ServiceTypeCar, model.ServiceTypeDirect)
	summary := s.newExecutor().Run(s.ctx, target)

	require.Equal(s.T(), 3, summary.TotalMethods)
	require.Equal(s.T(), 1, summary.SuccessfulMethods)
	require.Equal(s.T(), 2, summary.FailedMethods)
	require.Equal(s.T(), "baseline-fetch", summary.FastestMethod)

	require.Len(s.T(), summary.Attempts, 3)
	require.Equal(s.T(), "piece-fetch", summary.Attempts[0].ServiceType)
	require.Equal(s.T(), model.RetrievalStatusFailed, summary.Attempts[0].Status)
	require.Equal(s.T(), "block-fetch", summary.Attempts[1].ServiceType)
	require.Equal(s.T(), model.RetrievalStatusFailed, summary.Attempts[1].Status)
	require.Equal(s.T(), "baseline-fetch", summary.Attempts[2].ServiceType)
	require.Equal(s.T(), model.RetrievalStatusSuccess, summary.Attempts[2].Status)

	for _, row := range summary.Attempts {
		require.Equal(s.T(), target.Deal.ID, row.DealID)
		require.True(s.T(), row.CompletedAt.Valid)
		require.True(s.T(), row.LatencyMs.Valid)
		require.NotEmpty(s.T(), row.Endpoint)
	}
	require.Equal(s.T(), int64(len(pkg.Bytes)), summary.Attempts[2].BytesRetrieved)
}

func (s *RetrievalTestSuite) TestPieceFetchVerifiesDigest() {
	payload := s.randomPayload(4096)
	pkg := s.buildPackage(payload)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/ipfs/"):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Write(pkg.Bytes)
		}
	}))
	defer ts.Close()

	target := s.newTarget(ts.URL, metadataFor(pkg, pkg.Bytes), model.ServiceTypeCar, model.ServiceTypeDirect)
	summary := s.newExecutor().Run(s.ctx, target)

	// Block fetch is filtered out by the capability probe
	require.Equal(s.T(), 2, summary.TotalMethods)
	require.Equal(s.T(), 2, summary.SuccessfulMethods)

	piece := summary.Attempts[0]
	require.Equal(s.T(), "piece-fetch", piece.ServiceType)
	require.Equal(s.T(), model.RetrievalStatusSuccess, piece.Status)
	require.Equal(s.T(), int64(len(pkg.Bytes)), piece.BytesRetrieved)
}

func (s *RetrievalTestSuite) TestPieceFetchRejectsTamperedBytes() {
	payload := s.randomPayload(4096)
	pkg := s.buildPackage(payload)

	tampered := make([]byte, len(pkg.Bytes))
	copy(tampered, pkg.Bytes)
	tampered[len(tampered)/2] ^= 0xff

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/ipfs/"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/piece/"):
			w.Write(tampered)
		default:
			w.Write(pkg.Bytes)
		}
	}))
	defer ts.Close()

	target := s.newTarget(ts.URL, metadataFor(pkg, pkg.Bytes), model.ServiceTypeCar, model.ServiceTypeDirect)
	summary := s.newExecutor().Run(s.ctx, target)

	piece := summary.Attempts[0]
	require.Equal(s.T(), "piece-fetch", piece.ServiceType)
	require.Equal(s.T(), model.RetrievalStatusFailed, piece.Status)
	// Structural failure, identical bytes would come back again
	require.Equal(s.T(), 0, piece.RetryCount)
	require.Contains(s.T(), piece.ErrorMessage.String, "digest mismatch")
	require.Equal(s.T(), 1, summary.ValidationFailures)
}

// A payload below the chunk size packs into a single raw block, its body
// is the payload itself
func (s *RetrievalTestSuite) TestBlockFetchVerifiesEveryBlock() {
	payload := s.randomPayload(1024)
	pkg := s.buildPackage(payload)
	require.Equal(s.T(), 1, pkg.BlockCount)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/piece/"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/ipfs/"):
			w.Write(payload)
		default:
			w.Write(pkg.Bytes)
		}
	}))
	defer ts.Close()

	target := s.newTarget(ts.URL, metadataFor(pkg, pkg.Bytes), model.ServiceTypeCar, model.ServiceTypeDirect)
	summary := s.newExecutor().Run(s.ctx, target)

	require.Equal(s.T(), 2, summary.TotalMethods)
	block := summary.Attempts[0]
	require.Equal(s.T(), "block-fetch", block.ServiceType)
	require.Equal(s.T(), model.RetrievalStatusSuccess, block.Status)
	require.Equal(s.T(), int64(len(payload)), block.BytesRetrieved)
}

func (s *RetrievalTestSuite) TestBlockFetchRejectsCorruptBlock() {
	payload := s.randomPayload(1024)
	pkg := s.buildPackage(payload)

	corrupt := make([]byte, len(payload))
	copy(corrupt, payload)
	corrupt[0] ^= 0xff

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/piece/"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/ipfs/"):
			w.Write(corrupt)
		default:
			w.Write(pkg.Bytes)
		}
	}))
	defer ts.Close()

	target := s.newTarget(ts.URL, metadataFor(pkg, pkg.Bytes), model.ServiceTypeCar, model.ServiceTypeDirect)
	summary := s.newExecutor().Run(s.ctx, target)

	block := summary.Attempts[0]
	require.Equal(s.T(), "block-fetch", block.ServiceType)
	require.Equal(s.T(), model.RetrievalStatusFailed, block.Status)
	require.Equal(s.T(), 0, block.RetryCount)
	require.Contains(s.T(), block.ErrorMessage.String, "digest mismatch")
}

func (s *RetrievalTestSuite) TestStalledStreamGetsCancelled() {
	s.config.Retrieval.InactivityTimeout = 200 * time.Millisecond
	payload := s.randomPayload(4096)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || strings.HasPrefix(r.URL.Path, "/piece/") || strings.HasPrefix(r.URL.Path, "/ipfs/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(payload[:16])
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	defer ts.Close()

	target := s.newTarget(ts.URL, model.DealMetadata{}, model.ServiceTypeDirect)

	started := time.Now()
	summary := s.newExecutor().Run(s.ctx, target)
	require.Less(s.T(), time.Since(started), 5*time.Second)

	require.Equal(s.T(), 1, summary.TotalMethods)
	require.Equal(s.T(), 1, summary.FailedMethods)
	row := summary.Attempts[0]
	require.Equal(s.T(), model.RetrievalStatusFailed, row.Status)
	require.Equal(s.T(), int64(16), row.BytesRetrieved)
}

func (s *RetrievalTestSuite) TestBlockListCapKeepsRoot() {
	s.config.Retrieval.MaxBlockFetch = 3
	strategy := NewBlockFetchStrategy(s.config, NewCapabilities(s.config))

	target := s.newTarget("http://provider.test", model.DealMetadata{
		Car: &model.CarMetadata{
			RootCid:   "cid5",
			BlockCids: []string{"cid1", "cid2", "cid3", "cid4", "cid5"},
		},
	}, model.ServiceTypeCar)

	requests, err := strategy.ConstructRequests(target)
	require.Nil(s.T(), err)
	require.Len(s.T(), requests, 3)
	require.True(s.T(), strings.HasSuffix(requests[0].Url, "/ipfs/cid1"))
	require.True(s.T(), strings.HasSuffix(requests[1].Url, "/ipfs/cid2"))
	require.True(s.T(), strings.HasSuffix(requests[2].Url, "/ipfs/cid5"))
}

func (s *RetrievalTestSuite) TestCapabilityAnswersAreCached() {
	var heads atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Inc()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	capabilities := NewCapabilities(s.config)
	require.True(s.T(), capabilities.Supports(s.ctx, "piece|"+ts.URL, ts.URL+"/piece/x", nil))
	require.True(s.T(), capabilities.Supports(s.ctx, "piece|"+ts.URL, ts.URL+"/piece/x", nil))
	require.Equal(s.T(), int64(1), heads.Load())
}
