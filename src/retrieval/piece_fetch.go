package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/provider"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Fetches the whole piece by its commitment in one long transfer.
// Cheapest to verify, the body must match the uploaded bytes exactly.
type PieceFetchStrategy struct {
	config       *config.Config
	capabilities *Capabilities
	log          *logrus.Entry
}

func NewPieceFetchStrategy(config *config.Config, capabilities *Capabilities) (self *PieceFetchStrategy) {
	self = new(PieceFetchStrategy)
	self.config = config
	self.capabilities = capabilities
	self.log = logger.NewSublogger("retrieval-piece")
	return
}

func (self *PieceFetchStrategy) Name() string {
	return "piece-fetch"
}

func (self *PieceFetchStrategy) Priority() int {
	return 1
}

func (self *PieceFetchStrategy) CanHandle(ctx context.Context, target *Target) bool {
	if !target.Deal.HasServiceType(model.ServiceTypeCar) {
		return false
	}
	if target.Metadata.Car == nil || target.Metadata.Car.PieceCid == "" {
		return false
	}
	return self.capabilities.Supports(ctx,
		self.Name()+"|"+target.BaseUrl(),
		self.pieceUrl(target),
		nil)
}

func (self *PieceFetchStrategy) ConstructRequests(target *Target) (requests []*Request, err error) {
	return []*Request{{
		Url:      self.pieceUrl(target),
		Headers:  map[string]string{"Accept": provider.ContentTypeOctetStream},
		Protocol: ProtocolHttp2,
	}}, nil
}

// The piece endpoint serves the stored body byte for byte, so the direct
// digest applies when it was recorded
func (self *PieceFetchStrategy) ValidateData(index int, data []byte, target *Target) (err error) {
	if direct := target.Metadata.Direct; direct != nil {
		if int64(len(data)) != direct.PayloadSize {
			return xerrors.Errorf("piece size mismatch: got %d, want %d", len(data), direct.PayloadSize)
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != direct.PayloadSha256 {
			return xerrors.New("piece digest mismatch")
		}
		return nil
	}

	if car := target.Metadata.Car; car != nil && int64(len(data)) != car.CarSize {
		return xerrors.Errorf("piece size mismatch: got %d, want %d", len(data), car.CarSize)
	}
	return nil
}

func (self *PieceFetchStrategy) pieceUrl(target *Target) string {
	return target.BaseUrl() + "/piece/" + target.Metadata.Car.PieceCid
}
