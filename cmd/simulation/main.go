// Command simulation drives a full option lifecycle against a running
// server: registration, escrow funding, contract creation, exercise and
// settlement, then a withdrawal. It exercises the API the way the
// presentation layer would.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serverAddress = "http://localhost:8080"

const (
	buyerKey     = "buyer-demo"
	buyerSecret  = "buyer-demo-secret"
	sellerKey    = "seller-demo"
	sellerSecret = "seller-demo-secret"
)

// Scenario: 100-unit call struck at $150.00, exercised at $170.00 with
// the native coin at $100.00. Expected payout: 20 coins.
const (
	numUnits        = 100
	strikePrice     = 15_000
	underlyingPrice = 17_000
	coinPrice       = 10_000
	premium         = 1_000_000_000 // 1 coin
	marginBps       = 500
	walletFunding   = 100_000_000_000 // 100 coins per party
	escrowDeposit   = 50_000_000_000  // 50 coins
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// apiClient handles HTTP communication with the settlement API on behalf
// of one party
type apiClient struct {
	baseURL   string
	owner     string
	authToken string
	client    *http.Client
}

// envelope mirrors the API's standardized response shape
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newAPIClient authenticates one party and returns a ready client
func newAPIClient(owner, apiKey, apiSecret string) (*apiClient, error) {
	ac := &apiClient{
		baseURL: serverAddress,
		owner:   owner,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	body, err := json.Marshal(map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	})
	if err != nil {
		return nil, err
	}

	resp, err := ac.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", ac.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate %s: %w", owner, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("authentication for %s failed with status %d", owner, resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	ac.authToken = result.Data.Token
	return ac, nil
}

// do sends an authenticated request and decodes the response envelope
// into out when out is non-nil
func (ac *apiClient) do(method, path string, payload, out interface{}) error {
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, ac.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ac.authToken)

	resp, err := ac.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s %s: %s (%s)", method, path, env.Error.Message, env.Error.Code)
		}
		return fmt.Errorf("%s %s: request failed with status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (ac *apiClient) escrowBalance() (uint64, error) {
	var esc struct {
		Balance uint64 `json:"balance"`
	}
	if err := ac.do(http.MethodGet, "/api/v1/escrow", nil, &esc); err != nil {
		return 0, err
	}
	return esc.Balance, nil
}

func main() {
	log.Info().Msg("starting option lifecycle simulation")

	buyer, err := newAPIClient(buyerKey, buyerKey, buyerSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("buyer authentication failed")
	}
	seller, err := newAPIClient(sellerKey, sellerKey, sellerSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("seller authentication failed")
	}
	log.Info().Msg("both parties authenticated")

	// Fund external wallets through the internal faucet
	for _, party := range []*apiClient{buyer, seller} {
		err := party.do(http.MethodPost, "/api/v1/internal/wallets/fund", map[string]interface{}{
			"owner":  party.owner,
			"amount": walletFunding,
		}, nil)
		if err != nil {
			log.Fatal().Err(err).Str("owner", party.owner).Msg("wallet funding failed")
		}
	}
	log.Info().Uint64("amount", walletFunding).Msg("wallets funded")

	// Register both parties and allocate their escrows
	for _, party := range []*apiClient{buyer, seller} {
		if err := party.do(http.MethodPost, "/api/v1/users", nil, nil); err != nil {
			log.Fatal().Err(err).Str("owner", party.owner).Msg("user registration failed")
		}
		if err := party.do(http.MethodPost, "/api/v1/escrow", nil, nil); err != nil {
			log.Fatal().Err(err).Str("owner", party.owner).Msg("escrow initialization failed")
		}
		err := party.do(http.MethodPost, "/api/v1/escrow/deposit", map[string]interface{}{
			"amount": escrowDeposit,
		}, nil)
		if err != nil {
			log.Fatal().Err(err).Str("owner", party.owner).Msg("deposit failed")
		}
		log.Info().Str("owner", party.owner).Msg("registered, escrow funded")
	}

	// Buyer creates a call on the negotiated terms. Test timing rules so
	// the simulation can exercise immediately.
	var contract struct {
		Address             string `json:"address"`
		Status              string `json:"status"`
		MarginAmount        uint64 `json:"margin_amount"`
		BuyerPendingBalance uint64 `json:"buyer_pending_balance"`
	}
	err = buyer.do(http.MethodPost, "/api/v1/contracts", map[string]interface{}{
		"seller":                 seller.owner,
		"underlying_asset":       "ACME",
		"num_units":              numUnits,
		"strike_price":           strikePrice,
		"expiration_date":        time.Now().Add(24 * time.Hour).Unix(),
		"option_type":            "CALL",
		"premium":                premium,
		"margin_requirement_bps": marginBps,
		"is_test":                true,
	}, &contract)
	if err != nil {
		log.Fatal().Err(err).Msg("contract creation failed")
	}
	log.Info().
		Str("contract_address", contract.Address).
		Str("status", contract.Status).
		Uint64("margin_amount", contract.MarginAmount).
		Msg("contract created")

	buyerBefore, err := buyer.escrowBalance()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read buyer escrow")
	}
	sellerBefore, err := seller.escrowBalance()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read seller escrow")
	}

	// Buyer exercises at the scenario prices
	err = buyer.do(http.MethodPost, "/api/v1/contracts/"+contract.Address+"/exercise", map[string]interface{}{
		"underlying_price_usd": underlyingPrice,
		"coin_price_usd":       coinPrice,
	}, &contract)
	if err != nil {
		log.Fatal().Err(err).Msg("exercise failed")
	}
	log.Info().
		Str("status", contract.Status).
		Uint64("buyer_pending_balance", contract.BuyerPendingBalance).
		Msg("contract exercised")

	// The seller triggers settlement: any party may crank the payout
	err = seller.do(http.MethodPost, "/api/v1/contracts/"+contract.Address+"/settle", nil, &contract)
	if err != nil {
		log.Fatal().Err(err).Msg("settlement failed")
	}
	log.Info().Str("status", contract.Status).Msg("contract settled")

	buyerAfter, err := buyer.escrowBalance()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read buyer escrow")
	}
	sellerAfter, err := seller.escrowBalance()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read seller escrow")
	}

	log.Info().
		Uint64("buyer_before", buyerBefore).
		Uint64("buyer_after", buyerAfter).
		Uint64("seller_before", sellerBefore).
		Uint64("seller_after", sellerAfter).
		Uint64("payout", buyerAfter-buyerBefore).
		Msg("settlement moved funds between escrows")

	// Buyer pulls the payout back to their wallet
	err = buyer.do(http.MethodPost, "/api/v1/escrow/withdraw", map[string]interface{}{
		"amount": buyerAfter - buyerBefore,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("withdrawal failed")
	}
	log.Info().Msg("buyer withdrew payout; simulation complete")
}
