package authapi

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single round trip when no HTTPClient is supplied.
const DefaultTimeout = 10 * time.Second

// Client is a client for the tabchat authentication service.
type Client struct {
	BaseURL    string
	ClientID   string
	HTTPClient *http.Client

	// Limiter, when set, throttles outgoing requests client side. Useful to
	// keep a misbehaving UI from hammering the token endpoint.
	Limiter *rate.Limiter
}

// NewClient creates a new auth service client.
func NewClient(baseURL, clientID string) *Client {
	return &Client{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		ClientID: clientID,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}
