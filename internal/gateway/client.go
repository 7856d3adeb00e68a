// Package gateway talks to the hosted payment provider. Every request and
// callback is signed with HMAC-SHA256 over the sorted key=value parameters.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/airticket/config"
	"github.com/sirupsen/logrus"
)

var ErrBadSignature = errors.New("gateway signature mismatch")

// Provider result codes that mean the customer has not finished paying.
var pendingCodes = map[int]bool{1000: true, 7000: true, 7002: true}

type Client struct {
	cfg  config.GatewayConfig
	http *http.Client
	log  logrus.FieldLogger
}

func NewClient(cfg config.GatewayConfig, logger logrus.FieldLogger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  logger,
	}
}

type InitiateRequest struct {
	OrderID     string
	RequestID   string
	Amount      int64
	OrderInfo   string
	ExtraData   string
	RedirectURL string
	IPNURL      string
}

type initiatePayload struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	OrderID     string `json:"orderId"`
	Amount      int64  `json:"amount"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
}

type InitiateResponse struct {
	PartnerCode string `json:"partnerCode"`
	OrderID     string `json:"orderId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	ResultCode  int    `json:"resultCode"`
	Message     string `json:"message"`
	PayURL      string `json:"payUrl"`

	Raw string `json:"-"`
}

// Callback is the provider's payment notification, delivered both to the
// IPN endpoint and as redirect parameters on the customer's return.
type Callback struct {
	PartnerCode  string `json:"partnerCode" form:"partnerCode"`
	OrderID      string `json:"orderId" form:"orderId"`
	RequestID    string `json:"requestId" form:"requestId"`
	Amount       int64  `json:"amount" form:"amount"`
	OrderInfo    string `json:"orderInfo" form:"orderInfo"`
	OrderType    string `json:"orderType" form:"orderType"`
	TransID      int64  `json:"transId" form:"transId"`
	ResultCode   int    `json:"resultCode" form:"resultCode"`
	Message      string `json:"message" form:"message"`
	PayType      string `json:"payType" form:"payType"`
	ResponseTime int64  `json:"responseTime" form:"responseTime"`
	ExtraData    string `json:"extraData" form:"extraData"`
	Signature    string `json:"signature" form:"signature"`
}

type QueryResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	PayType      string `json:"payType"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`

	Raw string `json:"-"`
}

// Canonical joins params as sorted key=value pairs separated by '&'.
func Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

func Sign(secret string, params map[string]string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Canonical(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) SuccessCode() int {
	return c.cfg.SuccessCode
}

// IsPending reports whether code means the payment is still in progress.
func (c *Client) IsPending(code int) bool {
	return pendingCodes[code]
}

func (c *Client) callbackParams(cb Callback) map[string]string {
	return map[string]string{
		"accessKey":    c.cfg.AccessKey,
		"amount":       strconv.FormatInt(cb.Amount, 10),
		"extraData":    cb.ExtraData,
		"message":      cb.Message,
		"orderId":      cb.OrderID,
		"orderInfo":    cb.OrderInfo,
		"orderType":    cb.OrderType,
		"partnerCode":  cb.PartnerCode,
		"payType":      cb.PayType,
		"requestId":    cb.RequestID,
		"responseTime": strconv.FormatInt(cb.ResponseTime, 10),
		"resultCode":   strconv.Itoa(cb.ResultCode),
		"transId":      strconv.FormatInt(cb.TransID, 10),
	}
}

func (c *Client) VerifyCallback(cb Callback) error {
	expected := Sign(c.cfg.SecretKey, c.callbackParams(cb))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(cb.Signature))) {
		return ErrBadSignature
	}
	return nil
}

// SignCallback fills in the signature the provider would send.
func (c *Client) SignCallback(cb *Callback) {
	cb.Signature = Sign(c.cfg.SecretKey, c.callbackParams(*cb))
}

func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if c.cfg.Endpoint == "" || c.cfg.SecretKey == "" {
		return nil, fmt.Errorf("payment gateway not configured")
	}
	redirect, ipn := req.RedirectURL, req.IPNURL
	if redirect == "" {
		redirect = c.cfg.RedirectURL
	}
	if ipn == "" {
		ipn = c.cfg.IPNURL
	}

	payload := initiatePayload{
		PartnerCode: c.cfg.PartnerCode,
		AccessKey:   c.cfg.AccessKey,
		RequestID:   req.RequestID,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		OrderInfo:   req.OrderInfo,
		RedirectURL: redirect,
		IPNURL:      ipn,
		ExtraData:   req.ExtraData,
		RequestType: "captureWallet",
	}
	payload.Signature = Sign(c.cfg.SecretKey, map[string]string{
		"accessKey":   payload.AccessKey,
		"amount":      strconv.FormatInt(payload.Amount, 10),
		"extraData":   payload.ExtraData,
		"ipnUrl":      payload.IPNURL,
		"orderId":     payload.OrderID,
		"orderInfo":   payload.OrderInfo,
		"partnerCode": payload.PartnerCode,
		"redirectUrl": payload.RedirectURL,
		"requestId":   payload.RequestID,
		"requestType": payload.RequestType,
	})

	var resp InitiateResponse
	raw, err := c.post(ctx, c.cfg.Endpoint, payload, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw

	c.log.WithFields(logrus.Fields{
		"order_id":    req.OrderID,
		"result_code": resp.ResultCode,
	}).Info("gateway payment initiated")
	return &resp, nil
}

func (c *Client) Query(ctx context.Context, orderID, requestID string) (*QueryResponse, error) {
	endpoint := c.cfg.QueryEndpoint
	if endpoint == "" {
		return nil, fmt.Errorf("gateway query endpoint not configured")
	}

	payload := map[string]string{
		"partnerCode": c.cfg.PartnerCode,
		"accessKey":   c.cfg.AccessKey,
		"requestId":   requestID,
		"orderId":     orderID,
	}
	payload["signature"] = Sign(c.cfg.SecretKey, map[string]string{
		"accessKey":   c.cfg.AccessKey,
		"orderId":     orderID,
		"partnerCode": c.cfg.PartnerCode,
		"requestId":   requestID,
	})

	var resp QueryResponse
	raw, err := c.post(ctx, endpoint, payload, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw
	return &resp, nil
}

func (c *Client) post(ctx context.Context, url string, payload, out any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return string(data), fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return string(data), fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return string(data), nil
}
