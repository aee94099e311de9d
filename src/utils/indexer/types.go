package indexer

import "errors"

var (
	ErrFailedToParse = errors.New("failed to parse response")
)

// Subset of the find response the verifier cares about
type FindResponse struct {
	MultihashResults []MultihashResult `json:"MultihashResults"`
}

type MultihashResult struct {
	Multihash       string           `json:"Multihash"`
	ProviderResults []ProviderResult `json:"ProviderResults"`
}

type ProviderResult struct {
	ContextID string   `json:"ContextID"`
	Provider  AddrInfo `json:"Provider"`
	Metadata  string   `json:"Metadata,omitempty"`
}

type AddrInfo struct {
	ID    string   `json:"ID"`
	Addrs []string `json:"Addrs"`
}

type LookupResult struct {
	Cid            string
	Found          bool
	KnownAddresses []string
}
