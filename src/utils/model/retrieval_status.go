package model

import "database/sql/driver"

// CREATE TYPE retrieval_status AS ENUM ('STARTED', 'SUCCESS', 'FAILED');
type RetrievalStatus string

const (
	RetrievalStatusStarted RetrievalStatus = "STARTED"
	RetrievalStatusSuccess RetrievalStatus = "SUCCESS"
	RetrievalStatusFailed  RetrievalStatus = "FAILED"
)

func (self *RetrievalStatus) Scan(value interface{}) error {
	switch value := value.(type) {
	case string:
		*self = RetrievalStatus(value)
	case []byte:
		*self = RetrievalStatus(value)
	}
	return nil
}

func (self RetrievalStatus) Value() (driver.Value, error) {
	return string(self), nil
}
