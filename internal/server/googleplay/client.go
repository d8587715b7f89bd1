// Package googleplay verifies one-time product purchases with the Google
// Play Developer API.
package googleplay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/server/entitlements"
	"golang.org/x/oauth2/google"
)

const (
	DefaultBaseURL        = "https://androidpublisher.googleapis.com"
	androidPublisherScope = "https://www.googleapis.com/auth/androidpublisher"

	// purchaseStatePurchased is the only state that grants an entitlement.
	purchaseStatePurchased = 0

	maxResponseBytes = 1 << 20
)

// Client implements entitlements.Verifier. The authenticated HTTP client is
// built on first use and reused afterwards; a failed build is not retried.
type Client struct {
	packageName     string
	credentialsFile string
	baseURL         string

	once       sync.Once
	httpClient *http.Client
	initErr    error
}

type Option func(*Client)

// WithHTTPClient replaces the service-account client, e.g. in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.once.Do(func() { cl.httpClient = c })
	}
}

// WithBaseURL points the client at another API host.
func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = u }
}

// NewClient verifies purchases for packageName using the service-account
// key in credentialsFile.
func NewClient(packageName, credentialsFile string, opts ...Option) *Client {
	c := &Client{
		packageName:     packageName,
		credentialsFile: credentialsFile,
		baseURL:         DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ entitlements.Verifier = (*Client)(nil)

func (c *Client) client() (*http.Client, error) {
	c.once.Do(func() {
		data, err := os.ReadFile(c.credentialsFile)
		if err != nil {
			c.initErr = fmt.Errorf("read google play credentials: %w", err)
			return
		}
		cfg, err := google.JWTConfigFromJSON(data, androidPublisherScope)
		if err != nil {
			c.initErr = fmt.Errorf("parse google play credentials: %w", err)
			return
		}
		c.httpClient = cfg.Client(context.Background())
	})
	return c.httpClient, c.initErr
}

type productPurchase struct {
	PurchaseState      *int   `json:"purchaseState"`
	OrderID            string `json:"orderId"`
	PurchaseTimeMillis string `json:"purchaseTimeMillis"`
}

// Verify looks the purchase token up. Tokens Google does not know, or
// purchases that are not in the purchased state, yield
// common.ErrPurchaseNotActive; transport and API failures wrap
// common.ErrUpstream.
func (c *Client) Verify(ctx context.Context, req entitlements.VerifyRequest) (*entitlements.VerifiedPurchase, error) {
	hc, err := c.client()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstream, err)
	}

	endpoint := fmt.Sprintf("%s/androidpublisher/v3/applications/%s/purchases/products/%s/tokens/%s",
		c.baseURL, url.PathEscape(c.packageName), url.PathEscape(req.ProductID), url.PathEscape(req.PurchaseToken))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstream, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: google play: %v", common.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: google play: read body: %v", common.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: google play status %d", common.ErrPurchaseNotActive, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: google play status %d", common.ErrUpstream, resp.StatusCode)
	}

	var p productPurchase
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: google play: decode: %v", common.ErrUpstream, err)
	}
	if p.PurchaseState == nil || *p.PurchaseState != purchaseStatePurchased {
		return nil, common.ErrPurchaseNotActive
	}

	out := &entitlements.VerifiedPurchase{RawResponse: json.RawMessage(body)}
	if p.OrderID != "" {
		out.OrderID = &p.OrderID
	}
	if p.PurchaseTimeMillis != "" {
		if ms, err := strconv.ParseInt(p.PurchaseTimeMillis, 10, 64); err == nil {
			t := time.UnixMilli(ms).UTC()
			out.PurchaseTime = &t
		}
	}
	return out, nil
}
