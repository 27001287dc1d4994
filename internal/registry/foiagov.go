package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultDirectoryURL is the public FOIA.gov API base.
	DefaultDirectoryURL = "https://api.foia.gov/api"

	// ClientTimeout bounds a whole directory fetch.
	ClientTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// maxDirectoryBytes caps the response body.
	maxDirectoryBytes = 32 << 20
)

// ErrDirectoryUnavailable is returned when the agency directory cannot be read.
var ErrDirectoryUnavailable = errors.New("agency directory unavailable")

// DirectoryEntry is one raw agency component as published by the directory.
type DirectoryEntry struct {
	Abbreviation string   `json:"abbreviation"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Website      string   `json:"website"`
	Emails       []string `json:"emails"`
	RequestForm  *struct {
		Email string `json:"email"`
	} `json:"request_form"`
}

// DirectoryClient fetches the raw agency directory.
type DirectoryClient interface {
	FetchDirectory(ctx context.Context) ([]DirectoryEntry, error)
}

// FOIAGovClient reads agency components from the FOIA.gov API.
type FOIAGovClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewFOIAGovClient creates a directory client. An empty baseURL uses the public API.
func NewFOIAGovClient(baseURL, apiKey string) *FOIAGovClient {
	if baseURL == "" {
		baseURL = DefaultDirectoryURL
	}
	return &FOIAGovClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: ClientTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FetchDirectory implements DirectoryClient.
func (c *FOIAGovClient) FetchDirectory(ctx context.Context) ([]DirectoryEntry, error) {
	u := c.baseURL + "/agency_components?api_key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error would echo the api key
		return nil, fmt.Errorf("%w: %s", ErrDirectoryUnavailable, redactKey(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: HTTP %d", ErrDirectoryUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDirectoryBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDirectoryUnavailable, err)
	}
	return decodeDirectory(body)
}

// decodeDirectory accepts a bare array or a {"data": [...]} envelope.
func decodeDirectory(body []byte) ([]DirectoryEntry, error) {
	var entries []DirectoryEntry
	if err := json.Unmarshal(body, &entries); err == nil {
		return entries, nil
	}

	var envelope struct {
		Data []DirectoryEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrDirectoryUnavailable, err)
	}
	return envelope.Data, nil
}

func redactKey(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, url.QueryEscape(key), "[REDACTED]")
}
