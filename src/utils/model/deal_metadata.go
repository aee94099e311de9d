package model

import (
	"encoding/json"

	"github.com/jackc/pgtype"
)

// Metadata contributed by the direct storage strategy
type DirectMetadata struct {
	PayloadSize   int64  `json:"payloadSize"`
	PayloadSha256 string `json:"payloadSha256"`
}

// Metadata contributed by the car storage strategy
type CarMetadata struct {
	RootCid        string   `json:"rootCid"`
	BlockCids      []string `json:"blockCids"`
	BlockCount     int      `json:"blockCount"`
	TotalBlockSize uint64   `json:"totalBlockSize"`
	CarSize        int64    `json:"carSize"`
	PieceCid       string   `json:"pieceCid"`
}

// Union of the per-strategy metadata, keyed by service type.
// Each strategy fills in its own key, keys never overlap.
type DealMetadata struct {
	Direct *DirectMetadata `json:"direct,omitempty"`
	Car    *CarMetadata    `json:"car,omitempty"`
}

// Copies the keys set in other, leaving the rest untouched
func (self *DealMetadata) Merge(other DealMetadata) {
	if other.Direct != nil {
		self.Direct = other.Direct
	}
	if other.Car != nil {
		self.Car = other.Car
	}
}

func (self *Deal) GetMetadata() (out DealMetadata, err error) {
	if self.Metadata.Status != pgtype.Present {
		return
	}
	err = json.Unmarshal(self.Metadata.Bytes, &out)
	return
}

func (self *Deal) SetMetadata(metadata DealMetadata) (err error) {
	buf, err := json.Marshal(metadata)
	if err != nil {
		return
	}
	return self.Metadata.Set(buf)
}
