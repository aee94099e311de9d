package packager

import (
	"context"
	"math/rand"
	"os"
	"testing"

	"github.com/filstation/spprobe/src/utils/config"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestPackagerTestSuite(t *testing.T) {
	suite.Run(t, new(PackagerTestSuite))
}

type PackagerTestSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	config   *config.Config
	packager *Packager
}

func (s *PackagerTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.config = config.Default()
	s.packager = NewPackager(s.config)
}

func (s *PackagerTestSuite) TearDownSuite() {
	s.cancel()
}

func randomPayload(size int) []byte {
	out := make([]byte, size)
	rand.New(rand.NewSource(42)).Read(out)
	return out
}

func (s *PackagerTestSuite) TestBuildSmallPayload() {
	pkg, err := s.packager.Build(s.ctx, "small.dat", []byte("probing the storage network"))
	require.Nil(s.T(), err)
	require.NotNil(s.T(), pkg)

	require.True(s.T(), pkg.RootCid.Defined())
	require.Equal(s.T(), 1, pkg.BlockCount)
	require.Equal(s.T(), pkg.RootCid, pkg.BlockCids[0])
	require.NotZero(s.T(), pkg.TotalBlockSize)
	require.True(s.T(), pkg.PieceCid.Defined())
	require.NotZero(s.T(), pkg.PaddedPieceSize)
	require.NotEmpty(s.T(), pkg.Bytes)
}

func (s *PackagerTestSuite) TestBuildIsDeterministic() {
	payload := randomPayload(1 << 16)

	a, err := s.packager.Build(s.ctx, "a.dat", payload)
	require.Nil(s.T(), err)
	b, err := s.packager.Build(s.ctx, "b.dat", payload)
	require.Nil(s.T(), err)

	require.Equal(s.T(), a.RootCid, b.RootCid)
	require.Equal(s.T(), a.PieceCid, b.PieceCid)
	require.Equal(s.T(), a.Bytes, b.Bytes)
}

func (s *PackagerTestSuite) TestRoundTrip() {
	pkg, err := s.packager.Build(s.ctx, "roundtrip.dat", randomPayload(1<<18))
	require.Nil(s.T(), err)

	result := s.packager.Validate(s.ctx, pkg.Bytes, pkg.RootCid.String())
	require.True(s.T(), result.Valid)
	require.Empty(s.T(), result.Reasons)
	require.Equal(s.T(), 1, result.FilesExtracted)
	require.Equal(s.T(), pkg.RootCid.String(), result.DeclaredRoot)
	require.Equal(s.T(), pkg.RootCid.String(), result.RebuiltRoot)
}

func (s *PackagerTestSuite) TestValidateWrongRoot() {
	pkg, err := s.packager.Build(s.ctx, "first.dat", randomPayload(1<<16))
	require.Nil(s.T(), err)
	other, err := s.packager.Build(s.ctx, "second.dat", []byte("a different payload"))
	require.Nil(s.T(), err)

	result := s.packager.Validate(s.ctx, pkg.Bytes, other.RootCid.String())
	require.False(s.T(), result.Valid)
	require.Contains(s.T(), result.Reasons, ReasonRootCidMismatch)
}

func (s *PackagerTestSuite) TestValidateTruncated() {
	pkg, err := s.packager.Build(s.ctx, "truncated.dat", randomPayload(1<<18))
	require.Nil(s.T(), err)

	result := s.packager.Validate(s.ctx, pkg.Bytes[:len(pkg.Bytes)-100], pkg.RootCid.String())
	require.False(s.T(), result.Valid)
	require.NotEmpty(s.T(), result.Reasons)
}

func (s *PackagerTestSuite) TestValidateGarbage() {
	result := s.packager.Validate(s.ctx, []byte("not an archive at all"), "bafy")
	require.False(s.T(), result.Valid)
	require.Contains(s.T(), result.Reasons, ReasonUnpackError)
}

func (s *PackagerTestSuite) TestScratchCleanup() {
	scratch := s.T().TempDir()
	conf := config.Default()
	conf.Packager.ScratchDir = scratch
	packager := NewPackager(conf)

	pkg, err := packager.Build(s.ctx, "cleanup.dat", randomPayload(1<<16))
	require.Nil(s.T(), err)

	result := packager.Validate(s.ctx, pkg.Bytes, pkg.RootCid.String())
	require.True(s.T(), result.Valid)

	entries, err := os.ReadDir(scratch)
	require.Nil(s.T(), err)
	require.Empty(s.T(), entries)
}

func (s *PackagerTestSuite) TestEndToEndTenMebibytes() {
	payload := randomPayload(10485760)

	pkg, err := s.packager.Build(s.ctx, "large.dat", payload)
	require.Nil(s.T(), err)
	require.True(s.T(), pkg.RootCid.Defined())
	require.GreaterOrEqual(s.T(), pkg.BlockCount, 2)
	require.GreaterOrEqual(s.T(), pkg.TotalBlockSize, uint64(len(payload)))

	result := s.packager.Validate(s.ctx, pkg.Bytes, pkg.RootCid.String())
	require.True(s.T(), result.Valid)
	require.Empty(s.T(), result.Reasons)

	// One flipped byte inside a block has to be caught
	mutated := make([]byte, len(pkg.Bytes))
	copy(mutated, pkg.Bytes)
	mutated[len(mutated)/2] ^= 0xff

	result = s.packager.Validate(s.ctx, mutated, pkg.RootCid.String())
	require.False(s.T(), result.Valid)
	require.NotEmpty(s.T(), result.Reasons)
	found := false
	for _, reason := range result.Reasons {
		if reason == ReasonRebuiltCidMismatch || reason == ReasonUnpackError {
			found = true
		}
	}
	require.True(s.T(), found, "reasons: %v", result.Reasons)
}
