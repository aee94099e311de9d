package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/lib/pq"
)

const (
	TableDeal = "deals"
)

// Service types a deal may carry. One deal can use several.
const (
	ServiceTypeDirect = "direct"
	ServiceTypeCar    = "car"
)

type Deal struct {
	// Random id assigned upon creation
	ID uuid.UUID `gorm:"primaryKey;type:uuid"`

	// Address of the storage provider this deal probes
	ProviderAddress string

	// Piece CID assigned by the packager, empty for direct-only deals
	PieceCid pgtype.Text

	// Name of the uploaded file, unique per probe
	FileName string

	// Size of the original payload in bytes
	FileSize int64

	// Forward-only status, FAILED reachable from any non-terminal status
	Status DealStatus `gorm:"type:deal_status"`

	// Which storage strategies contributed to this deal
	ServiceTypes pq.StringArray `gorm:"type:text[]"`

	// Per-strategy metadata, one fixed-shape key per service type
	Metadata pgtype.JSONB

	// Last error that moved the deal towards FAILED
	ErrorMessage pgtype.Text

	// How many times deal creation was retried
	RetryCount int

	// Verification state of the content-addressed blocks, car deals only
	IpniState IpniState `gorm:"type:ipni_state"`

	// Number of provider status polls performed so far
	IpniPolls int

	// Block CIDs confirmed retrievable through the indexing network
	IpniVerifiedCids int

	// Block CIDs the indexing network doesn't know about
	IpniUnverifiedCids int

	// Per-CID failure report from the last verification round
	IpniReport pgtype.JSONB

	// Last time the verifier looked at this deal. Used to pick due deals.
	IpniCheckedAt sql.NullTime

	// Phase timestamps
	CreatedAt      time.Time
	PreprocessedAt sql.NullTime
	SubmittedAt    sql.NullTime
	StoredAt       sql.NullTime
	CompletedAt    sql.NullTime

	// Time of the last update to this row
	UpdatedAt time.Time
}

func (Deal) TableName() string {
	return TableDeal
}

// Fresh deal row with every nullable column initialized.
// Undefined pgtype values don't encode.
func NewDeal(providerAddress, fileName string, fileSize int64) (self *Deal) {
	self = new(Deal)
	self.ID = uuid.New()
	self.ProviderAddress = providerAddress
	self.FileName = fileName
	self.FileSize = fileSize
	self.Status = DealStatusCreated

	self.PieceCid.Status = pgtype.Null
	self.Metadata.Status = pgtype.Null
	self.ErrorMessage.Status = pgtype.Null
	self.IpniReport.Status = pgtype.Null
	return
}

func (self *Deal) HasServiceType(serviceType string) bool {
	for _, t := range self.ServiceTypes {
		if t == serviceType {
			return true
		}
	}
	return false
}
