package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/filstation/spprobe/src/utils/config"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
)

func TestProviderClientSuite(t *testing.T) {
	suite.Run(t, new(ProviderClientTestSuite))
}

type ProviderClientTestSuite struct {
	suite.Suite

	ctx    context.Context
	config *config.Config
}

func (s *ProviderClientTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.config = config.Default()
	s.config.ProviderClient.RateLimit = 1000
}

func (s *ProviderClientTestSuite) provider(url string) *config.Provider {
	return &config.Provider{Address: "f01000", ServiceUrl: url}
}

func (s *ProviderClientTestSuite) TestCreateDealRoundTrip() {
	var mtx sync.Mutex
	var path, userAgent string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mtx.Lock()
		path = r.URL.Path
		userAgent = r.Header.Get("User-Agent")
		mtx.Unlock()

		var in CreateDealRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&CreateDealResponse{DealId: in.DealId, Status: DealStateAccepted})
	}))
	defer srv.Close()

	client := NewClient(s.config)
	out, err := client.CreateDeal(s.ctx, s.provider(srv.URL), &CreateDealRequest{
		DealId:       "deal-1",
		FileName:     "spprobe-1.bin",
		FileSize:     1024,
		ServiceTypes: []string{"direct"},
	})
	require.Nil(s.T(), err)
	require.Equal(s.T(), "deal-1", out.DealId)
	require.Equal(s.T(), DealStateAccepted, out.Status)

	mtx.Lock()
	defer mtx.Unlock()
	require.Equal(s.T(), "/api/v1/deals", path)
	require.Contains(s.T(), userAgent, "filstation.io/spprobe/")
}

func (s *ProviderClientTestSuite) TestErrorStatusBecomesError() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(s.config)
	_, err := client.GetDeal(s.ctx, s.provider(srv.URL), "missing")
	require.NotNil(s.T(), err)
	require.Contains(s.T(), err.Error(), "unexpected status")
}

func (s *ProviderClientTestSuite) TestServerErrorIsRetriedOnce() {
	calls := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Inc() == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&DealStatusResponse{DealId: "deal-1", Status: DealStateStored})
	}))
	defer srv.Close()

	client := NewClient(s.config)
	out, err := client.GetDeal(s.ctx, s.provider(srv.URL), "deal-1")
	require.Nil(s.T(), err)
	require.Equal(s.T(), DealStateStored, out.Status)
	require.Equal(s.T(), int64(2), calls.Load())
}

func (s *ProviderClientTestSuite) TestUploadIsNeverRetried() {
	calls := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(s.config)
	err := client.UploadPayload(s.ctx, s.provider(srv.URL), "deal-1", ContentTypeOctetStream, []byte("payload"))
	require.NotNil(s.T(), err)
	require.Equal(s.T(), int64(1), calls.Load())
}

func (s *ProviderClientTestSuite) TestPieceStatusParses() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(s.T(), "/api/v1/pieces/bagapiece/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&PieceStatusResponse{
			PieceCid:   "bagapiece",
			Status:     "indexed",
			Indexed:    true,
			Advertised: false,
		})
	}))
	defer srv.Close()

	client := NewClient(s.config)
	out, err := client.GetPieceStatus(s.ctx, s.provider(srv.URL), "bagapiece")
	require.Nil(s.T(), err)
	require.True(s.T(), out.Indexed)
	require.False(s.T(), out.Advertised)
}
