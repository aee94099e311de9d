package storage

import (
	"context"
	"strings"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/packager"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Wraps the payload into a content-addressed CAR. Runs before the direct
// strategy, so everything downstream sees the CAR bytes as the payload.
type CarStrategy struct {
	config   *config.Config
	packager *packager.Packager
	log      *logrus.Entry
}

func NewCarStrategy(config *config.Config, packager *packager.Packager) (self *CarStrategy) {
	self = new(CarStrategy)
	self.config = config
	self.packager = packager
	self.log = logger.NewSublogger("storage-car")
	return
}

func (self *CarStrategy) Name() string {
	return model.ServiceTypeCar
}

func (self *CarStrategy) Priority() int {
	return 1
}

func (self *CarStrategy) IsApplicable(config *config.Config) bool {
	return config.Storage.CarEnabled
}

func (self *CarStrategy) PreprocessData(ctx context.Context, job *Job) (err error) {
	pkg, err := self.packager.Build(ctx, job.FileName, job.Payload)
	if err != nil {
		return xerrors.Errorf("failed to package payload: %w", err)
	}

	job.Package = pkg
	job.Payload = pkg.Bytes
	job.Metadata.Merge(model.DealMetadata{
		Car: &model.CarMetadata{
			RootCid:        pkg.RootCid.String(),
			BlockCids:      pkg.BlockCidStrings(),
			BlockCount:     pkg.BlockCount,
			TotalBlockSize: pkg.TotalBlockSize,
			CarSize:        pkg.CarSize(),
			PieceCid:       pkg.PieceCid.String(),
		},
	})

	self.log.WithField("root", pkg.RootCid.String()).
		WithField("blocks", pkg.BlockCount).
		Debug("Packaged payload into a CAR")
	return nil
}

func (self *CarStrategy) ProviderConfig() map[string]interface{} {
	return map[string]interface{}{"car": true}
}

// Proves the freshly built CAR decodes back to the intended content
// before any bytes leave the process
func (self *CarStrategy) ValidateResult(ctx context.Context, job *Job) (err error) {
	if job.Package == nil {
		return xerrors.New("no content package to validate")
	}

	result := self.packager.Validate(ctx, job.Package.Bytes, job.Package.RootCid.String())
	if !result.Valid {
		return xerrors.Errorf("car failed round-trip validation: %s", strings.Join(result.Reasons, ", "))
	}
	return nil
}

// Stamps the piece onto the deal row and opens the indexing state machine
func (self *CarStrategy) PostProcess(ctx context.Context, job *Job, deal *model.Deal) (err error) {
	if job.Package == nil {
		return nil
	}

	err = deal.PieceCid.Set(job.Package.PieceCid.String())
	if err != nil {
		return err
	}
	deal.IpniState = model.IpniStatePending
	return nil
}
