package provider

import (
	"context"

	"github.com/filstation/spprobe/src/utils/config"
)

// Client for the deal API served by the storage providers
type Client struct {
	*BaseClient
}

func NewClient(config *config.Config) (self *Client) {
	self = new(Client)
	self.BaseClient = newBaseClient(config)
	return
}

func (self *Client) CreateDeal(ctx context.Context, sp *config.Provider, in *CreateDealRequest) (out *CreateDealResponse, err error) {
	resp, err := self.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetBody(in).
		SetResult(&CreateDealResponse{}).
		Post(sp.ServiceUrl + "/api/v1/deals")
	if err != nil {
		return
	}

	out, ok := resp.Result().(*CreateDealResponse)
	if !ok {
		err = ErrFailedToParse
		return
	}

	return
}

// Sends the payload bytes for an accepted deal
func (self *Client) UploadPayload(ctx context.Context, sp *config.Provider, dealId, contentType string, payload []byte) (err error) {
	_, err = self.uploadClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(payload).
		SetPathParam("dealId", dealId).
		Put(sp.ServiceUrl + "/api/v1/deals/{dealId}/payload")
	return
}

func (self *Client) GetDeal(ctx context.Context, sp *config.Provider, dealId string) (out *DealStatusResponse, err error) {
	resp, err := self.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&DealStatusResponse{}).
		SetPathParam("dealId", dealId).
		Get(sp.ServiceUrl + "/api/v1/deals/{dealId}")
	if err != nil {
		return
	}

	out, ok := resp.Result().(*DealStatusResponse)
	if !ok {
		err = ErrFailedToParse
		return
	}

	return
}

// Asks the provider whether the piece got indexed and advertised yet
func (self *Client) GetPieceStatus(ctx context.Context, sp *config.Provider, pieceCid string) (out *PieceStatusResponse, err error) {
	resp, err := self.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&PieceStatusResponse{}).
		SetPathParam("pieceCid", pieceCid).
		Get(sp.ServiceUrl + "/api/v1/pieces/{pieceCid}/status")
	if err != nil {
		return
	}

	out, ok := resp.Result().(*PieceStatusResponse)
	if !ok {
		err = ErrFailedToParse
		return
	}

	return
}
