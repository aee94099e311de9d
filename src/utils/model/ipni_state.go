package model

import "database/sql/driver"

// CREATE TYPE ipni_state AS ENUM ('PENDING', 'SP_INDEXED', 'SP_ADVERTISED', 'VERIFIED', 'FAILED');
type IpniState string

const (
	IpniStatePending      IpniState = "PENDING"
	IpniStateSpIndexed    IpniState = "SP_INDEXED"
	IpniStateSpAdvertised IpniState = "SP_ADVERTISED"
	IpniStateVerified     IpniState = "VERIFIED"
	IpniStateFailed       IpniState = "FAILED"
)

func (self *IpniState) Scan(value interface{}) error {
	switch value := value.(type) {
	case string:
		*self = IpniState(value)
	case []byte:
		*self = IpniState(value)
	}
	return nil
}

// The column is nullable, verification only applies to car deals
func (self IpniState) Value() (driver.Value, error) {
	if self == "" {
		return nil, nil
	}
	return string(self), nil
}

var ipniStateRank = map[IpniState]int{
	IpniStatePending:      0,
	IpniStateSpIndexed:    1,
	IpniStateSpAdvertised: 2,
	IpniStateVerified:     3,
}

func (self IpniState) IsTerminal() bool {
	return self == IpniStateVerified || self == IpniStateFailed
}

// Verification only moves forward through the pipeline.
// FAILED is reachable from any non-terminal state, on deadline or rejection.
func (self IpniState) CanTransition(next IpniState) bool {
	if self.IsTerminal() {
		return false
	}
	if next == IpniStateFailed {
		return true
	}
	from, ok := ipniStateRank[self]
	if !ok {
		return false
	}
	to, ok := ipniStateRank[next]
	if !ok {
		return false
	}
	return to > from
}
