package retrieval

import (
	"context"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/provider"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Plain byte fetch of the stored body. Always applicable, the fallback
// that tells a dead provider from one that merely lost its fancier
// retrieval surfaces.
type BaselineStrategy struct {
	config *config.Config
	log    *logrus.Entry
}

func NewBaselineStrategy(config *config.Config) (self *BaselineStrategy) {
	self = new(BaselineStrategy)
	self.config = config
	self.log = logger.NewSublogger("retrieval-baseline")
	return
}

func (self *BaselineStrategy) Name() string {
	return "baseline-fetch"
}

func (self *BaselineStrategy) Priority() int {
	return 10
}

func (self *BaselineStrategy) CanHandle(ctx context.Context, target *Target) bool {
	return true
}

func (self *BaselineStrategy) ConstructRequests(target *Target) (requests []*Request, err error) {
	return []*Request{{
		Url:      target.BaseUrl() + "/api/v1/deals/" + target.Deal.ID.String() + "/payload",
		Headers:  map[string]string{"Accept": provider.ContentTypeOctetStream},
		Protocol: ProtocolHttp11,
	}}, nil
}

// Only a size check, the baseline asserts the body came back whole,
// stronger guarantees belong to the verified strategies
func (self *BaselineStrategy) ValidateData(index int, data []byte, target *Target) (err error) {
	var expected int64
	switch {
	case target.Metadata.Direct != nil:
		expected = target.Metadata.Direct.PayloadSize
	case target.Metadata.Car != nil:
		expected = target.Metadata.Car.CarSize
	default:
		if len(data) == 0 {
			return xerrors.New("empty body")
		}
		return nil
	}

	if int64(len(data)) != expected {
		return xerrors.Errorf("body size mismatch: got %d, want %d", len(data), expected)
	}
	return nil
}
