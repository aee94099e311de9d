package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/filstation/spprobe/src/utils/build_info"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

var (
	ErrFailedToParse = errors.New("failed to parse response")
)

type AllowanceResponse struct {
	// Available allowance in attoFIL
	Available string `json:"available"`
}

type TopUpRequest struct {
	// Amount to add in attoFIL
	Amount string `json:"amount"`
}

// Client for the external allowance service keeping the bot's wallet funded.
// Disabled when no url is configured.
type Client struct {
	client *resty.Client
	config *config.Config
	log    *logrus.Entry
}

func NewClient(config *config.Config) (self *Client) {
	self = new(Client)
	self.config = config
	self.log = logger.NewSublogger("wallet-client")

	self.client =
		resty.New().
			SetTimeout(self.config.Wallet.RequestTimeout).
			SetHeader("User-Agent", "filstation.io/spprobe/"+build_info.Version).
			SetHeader("Accept", "application/json")

	return
}

func (self *Client) IsEnabled() bool {
	return self.config.Wallet.Url != ""
}

func (self *Client) GetAllowance(ctx context.Context) (out *AllowanceResponse, err error) {
	resp, err := self.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&AllowanceResponse{}).
		Get(self.config.Wallet.Url + "/api/v1/allowance")
	if err != nil {
		return
	}
	if resp.IsError() {
		err = xerrors.Errorf("unexpected status: %s", resp.Status())
		return
	}

	out, ok := resp.Result().(*AllowanceResponse)
	if !ok {
		err = ErrFailedToParse
		return
	}

	return
}

func (self *Client) TopUp(ctx context.Context, amount string) (err error) {
	resp, err := self.client.R().
		SetContext(ctx).
		SetBody(&TopUpRequest{Amount: amount}).
		Post(self.config.Wallet.Url + "/api/v1/allowance/topup")
	if err != nil {
		return
	}
	if resp.IsError() {
		err = xerrors.Errorf("unexpected status: %s", resp.Status())
	}
	return
}

// Tops up the wallet when the available allowance falls below the configured minimum.
// Called before every burst of deal creations.
func (self *Client) EnsureAllowance(ctx context.Context) (err error) {
	if !self.IsEnabled() {
		return nil
	}

	allowance, err := self.GetAllowance(ctx)
	if err != nil {
		return
	}

	available, ok := new(big.Int).SetString(allowance.Available, 10)
	if !ok {
		return ErrFailedToParse
	}
	min, ok := new(big.Int).SetString(self.config.Wallet.MinAllowance, 10)
	if !ok {
		return xerrors.Errorf("malformed min allowance: %s", self.config.Wallet.MinAllowance)
	}

	if available.Cmp(min) >= 0 {
		return nil
	}

	self.log.WithField("available", allowance.Available).
		WithField("min", self.config.Wallet.MinAllowance).
		Info("Topping up allowance")

	return self.TopUp(ctx, self.config.Wallet.TopUpAmount)
}
