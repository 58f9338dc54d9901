package drop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codedrop/codedrop/internal/dns"
)

// PutRequest is the body of POST /drop. Data is base64 in JSON.
type PutRequest struct {
	Kind     Kind   `json:"kind"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// GetResponse is the body of a successful GET /drop/{code}.
type GetResponse struct {
	Code      string    `json:"code"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name,omitempty"`
	MimeType  string    `json:"mimeType,omitempty"`
	Size      int64     `json:"size"`
	Text      string    `json:"text,omitempty"`
	Data      []byte    `json:"data,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	Remaining int       `json:"remaining"`
}

// ErrorResponse is the body of every failed drop request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client talks to the drop endpoints of a broker.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the broker at baseURL (http or https).
func NewClient(baseURL string) *Client {
	resolver := dns.NewResolver()
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				Proxy:       http.ProxyFromEnvironment,
				DialContext: resolver.DialContext,
			},
		},
	}
}

// Put uploads a drop and returns its receipt.
func (c *Client) Put(ctx context.Context, req PutRequest) (*Receipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/drop", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var receipt Receipt
	if err := c.do(httpReq, http.StatusCreated, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Get fetches the drop stored under code on behalf of device.
func (c *Client) Get(ctx context.Context, code, device string) (*GetResponse, error) {
	u := c.baseURL + "/drop/" + url.PathEscape(code) + "?device=" + url.QueryEscape(device)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp GetResponse
	if err := c.do(httpReq, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("drop request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return statusError(resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode drop response: %w", err)
	}
	return nil
}

// statusError maps a response status back to the service error it came from.
func statusError(status int, msg string) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrExpired
	case http.StatusForbidden:
		return ErrDeviceLimit
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("drop server returned %d: %s", status, msg)
}
