package model

import "database/sql/driver"

// CREATE TYPE deal_status AS ENUM ('CREATED', 'PREPROCESSED', 'SUBMITTED', 'STORED', 'COMPLETE', 'FAILED');
type DealStatus string

const (
	DealStatusCreated      DealStatus = "CREATED"
	DealStatusPreprocessed DealStatus = "PREPROCESSED"
	DealStatusSubmitted    DealStatus = "SUBMITTED"
	DealStatusStored       DealStatus = "STORED"
	DealStatusComplete     DealStatus = "COMPLETE"
	DealStatusFailed       DealStatus = "FAILED"
)

func (self *DealStatus) Scan(value interface{}) error {
	switch value := value.(type) {
	case string:
		*self = DealStatus(value)
	case []byte:
		*self = DealStatus(value)
	}
	return nil
}

func (self DealStatus) Value() (driver.Value, error) {
	return string(self), nil
}

// Order of statuses on the happy path
var dealStatusRank = map[DealStatus]int{
	DealStatusCreated:      0,
	DealStatusPreprocessed: 1,
	DealStatusSubmitted:    2,
	DealStatusStored:       3,
	DealStatusComplete:     4,
}

func (self DealStatus) IsTerminal() bool {
	return self == DealStatusComplete || self == DealStatusFailed
}

// Statuses only move forward. FAILED is reachable from any non-terminal status.
func (self DealStatus) CanAdvance(next DealStatus) bool {
	if self.IsTerminal() {
		return false
	}
	if next == DealStatusFailed {
		return true
	}
	from, ok := dealStatusRank[self]
	if !ok {
		return false
	}
	to, ok := dealStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}
