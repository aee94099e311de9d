package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"

	"github.com/sirupsen/logrus"
)

// Stores the payload bytes exactly as they are at its turn in the chain.
// Runs last, so the recorded digest always matches the uploaded body.
type DirectStrategy struct {
	log *logrus.Entry
}

func NewDirectStrategy() (self *DirectStrategy) {
	self = new(DirectStrategy)
	self.log = logger.NewSublogger("storage-direct")
	return
}

func (self *DirectStrategy) Name() string {
	return model.ServiceTypeDirect
}

func (self *DirectStrategy) Priority() int {
	return 10
}

func (self *DirectStrategy) IsApplicable(config *config.Config) bool {
	return config.Storage.DirectEnabled
}

func (self *DirectStrategy) PreprocessData(ctx context.Context, job *Job) (err error) {
	sum := sha256.Sum256(job.Payload)
	job.Metadata.Merge(model.DealMetadata{
		Direct: &model.DirectMetadata{
			PayloadSize:   int64(len(job.Payload)),
			PayloadSha256: hex.EncodeToString(sum[:]),
		},
	})
	return nil
}

func (self *DirectStrategy) ProviderConfig() map[string]interface{} {
	return nil
}
