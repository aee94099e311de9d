package provider

// Content types of the payload upload endpoint and block retrievals
const (
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeCar         = "application/vnd.ipld.car"
	ContentTypeIpldRaw     = "application/vnd.ipld.raw"
)

type CreateDealRequest struct {
	// Deal id assigned by the probe, adopted by the provider
	DealId       string   `json:"dealId"`
	FileName     string   `json:"fileName"`
	FileSize     int64    `json:"fileSize"`
	ServiceTypes []string `json:"serviceTypes"`

	// Only set for content-addressed deals
	PieceCid string `json:"pieceCid,omitempty"`
	RootCid  string `json:"rootCid,omitempty"`
	CarSize  int64  `json:"carSize,omitempty"`

	// Flags merged from every applied storage strategy
	Flags map[string]interface{} `json:"flags,omitempty"`
}

type CreateDealResponse struct {
	DealId    string `json:"dealId"`
	Status    string `json:"status,omitempty"`
	UploadUrl string `json:"uploadUrl,omitempty"`
}

type DealStatusResponse struct {
	DealId       string `json:"dealId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Status values the providers report on deals
const (
	DealStateAccepted = "accepted"
	DealStateStored   = "stored"
	DealStateFailed   = "failed"
)

type PieceStatusResponse struct {
	PieceCid   string `json:"pieceCid"`
	Status     string `json:"status"`
	Indexed    bool   `json:"indexed"`
	Advertised bool   `json:"advertised"`
	Error      string `json:"error,omitempty"`
}
