package ipni

// One CID that could not be confirmed in the index network
type VerificationFailure struct {
	Cid            string   `json:"cid"`
	Reason         string   `json:"reason"`
	KnownAddresses []string `json:"knownAddresses,omitempty"`
}

// Snapshot of the last verification pass, stored on the deal as JSON
type VerificationReport struct {
	Total        int                   `json:"total"`
	Verified     int                   `json:"verified"`
	Unverified   int                   `json:"unverified"`
	RootVerified bool                  `json:"rootVerified"`
	Failures     []VerificationFailure `json:"failures,omitempty"`
	Error        string                `json:"error,omitempty"`
}
