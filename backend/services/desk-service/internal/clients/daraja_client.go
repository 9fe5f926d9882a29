package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	oauthPath         = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath       = "/mpesa/stkpush/v1/processrequest"
	timestampLayout   = "20060102150405"
	transactionType   = "CustomerPayBillOnline"
	tokenExpiryMargin = time.Minute
)

// ErrDaraja wraps every failure reported by the Daraja API.
var ErrDaraja = errors.New("daraja: request failed")

// STKPush is one payment prompt to send to a customer handset.
type STKPush struct {
	Phone            string
	Amount           int64
	AccountReference string
	TransactionDesc  string
	CallbackURL      string
}

// STKPushResult carries the correlation token returned by the network.
type STKPushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

var eastAfricaTime = time.FixedZone("EAT", 3*60*60)

// STKClient sends STK push requests.
//
//go:generate mockgen -package=mocks -destination=mocks/mock_stk_client.go cyberdesk/backend/services/desk-service/internal/clients STKClient
type STKClient interface {
	PushSTK(ctx context.Context, push STKPush) (*STKPushResult, error)
}

// DarajaConfig holds Daraja credentials.
type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	// Location is the zone the STK timestamp is written in. Nil means East Africa Time.
	Location *time.Location
}

// DarajaClient talks to the Safaricom Daraja API. The OAuth token is cached until it expires.
type DarajaClient struct {
	cfg    DarajaConfig
	client HTTPDoer
	loc    *time.Location
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewDarajaClient builds client.
func NewDarajaClient(cfg DarajaConfig, client HTTPDoer) *DarajaClient {
	loc := cfg.Location
	if loc == nil {
		loc = eastAfricaTime
	}
	return &DarajaClient{cfg: cfg, client: client, loc: loc, now: time.Now}
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// PushSTK sends an STK push and returns the network's acknowledgement.
func (c *DarajaClient) PushSTK(ctx context.Context, push STKPush) (*STKPushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(c.loc).Format(timestampLayout)
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            push.Amount,
		PartyA:            push.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       push.Phone,
		CallBackURL:       push.CallbackURL,
		AccountReference:  push.AccountReference,
		TransactionDesc:   push.TransactionDesc,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	status, respBody, err := do(ctx, c.client, http.MethodPost, joinURL(c.cfg.BaseURL, stkPushPath), body, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaraja, err)
	}

	var apiErr darajaError
	_ = json.Unmarshal(respBody, &apiErr)
	if apiErr.ErrorMessage != "" {
		if status == http.StatusUnauthorized {
			c.invalidate()
		}
		return nil, fmt.Errorf("%w: %s %s", ErrDaraja, apiErr.ErrorCode, apiErr.ErrorMessage)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrDaraja, status)
	}

	var result STKPushResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrDaraja, err)
	}
	if result.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: response code %q: %s", ErrDaraja, result.ResponseCode, result.ResponseDescription)
	}
	if result.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrDaraja)
	}
	return &result, nil
}

func (c *DarajaClient) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (c *DarajaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	status, body, err := do(ctx, c.client, http.MethodGet, joinURL(c.cfg.BaseURL, oauthPath), nil, map[string]string{
		"Authorization": "Basic " + credentials,
	})
	if err != nil {
		return "", fmt.Errorf("%w: oauth: %v", ErrDaraja, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: oauth: unexpected status %d", ErrDaraja, status)
	}

	var resp oauthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: oauth: decode: %v", ErrDaraja, err)
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", fmt.Errorf("%w: oauth: empty access token", ErrDaraja)
	}

	ttl := time.Hour
	if seconds, err := strconv.Atoi(strings.TrimSpace(resp.ExpiresIn)); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	if ttl > tokenExpiryMargin {
		ttl -= tokenExpiryMargin
	}

	c.token = resp.AccessToken
	c.expiresAt = c.now().Add(ttl)
	return c.token, nil
}

func (c *DarajaClient) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
