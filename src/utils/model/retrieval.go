package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
)

const (
	TableRetrieval = "retrievals"
)

// One row per attempted retrieval strategy per probe.
// Immutable once CompletedAt is set.
type Retrieval struct {
	ID int64 `gorm:"primaryKey"`

	// Deal whose content was fetched
	DealID uuid.UUID `gorm:"type:uuid"`
	Deal   Deal      // Can be preloaded by gorm, but isn't by default.

	// Which retrieval strategy produced this attempt
	ServiceType string

	// Full URL the strategy fetched
	Endpoint string

	Status RetrievalStatus `gorm:"type:retrieval_status"`

	StartedAt   time.Time
	CompletedAt sql.NullTime

	// Total request duration
	LatencyMs sql.NullInt64

	// Time to first received byte
	TtfbMs sql.NullInt64

	// Payload bytes per second, measured over the whole transfer
	ThroughputBps sql.NullInt64

	BytesRetrieved int64

	ResponseCode sql.NullInt32

	ErrorMessage pgtype.Text

	// Which attempt this row records, 0 for the first
	RetryCount int
}

func (Retrieval) TableName() string {
	return TableRetrieval
}
