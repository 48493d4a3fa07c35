// Package client provides a Go client for the pageselect HTTP API.
//
// It covers page management (Put, Get, Delete, Import), selections and the
// system commands (snapshot, AOF rewrite). Errors returned by the server
// surface as *APIError.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sanonone/pageselect/pkg/core/types"
	"github.com/sanonone/pageselect/pkg/selection"
)

// APIError represents an error returned by the API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Selection is the result of Select.
type Selection struct {
	Pages  []types.Page `json:"pages"`
	Count  int          `json:"count"`
	Filter string       `json:"filter"`
}

// UIDs returns the uids of the selected pages in result order.
func (s Selection) UIDs() []uint32 {
	ids := make([]uint32, len(s.Pages))
	for i, p := range s.Pages {
		ids[i] = p.UID
	}
	return ids
}

type importResponse struct {
	Imported int `json:"imported"`
}

// Client talks to one pageselect server.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New creates a client for the server at baseURL (e.g. "http://localhost:9091").
// An empty authToken sends no Authorization header.
func New(baseURL string, authToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client (timeouts, transports, tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// jsonRequest marshals payload, executes the request and returns the body of
// a successful response.
func (c *Client) jsonRequest(method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}
	return c.do(method, endpoint, "application/json", reqBody)
}

func (c *Client) do(method, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequest(method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

// --- Pages ---

// PutPage stores or replaces a page.
func (c *Client) PutPage(p types.Page) error {
	_, err := c.jsonRequest(http.MethodPut, "/pages", p)
	return err
}

// GetPage fetches a page by uid.
func (c *Client) GetPage(uid uint32) (types.Page, error) {
	var p types.Page
	respBody, err := c.jsonRequest(http.MethodGet, "/pages/"+strconv.FormatUint(uint64(uid), 10), nil)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(respBody, &p); err != nil {
		return p, fmt.Errorf("failed to decode page: %w", err)
	}
	return p, nil
}

// DeletePage removes a page by uid.
func (c *Client) DeletePage(uid uint32) error {
	_, err := c.jsonRequest(http.MethodDelete, "/pages/"+strconv.FormatUint(uint64(uid), 10), nil)
	return err
}

// Import uploads a YAML page file and returns how many pages were stored.
func (c *Client) Import(yamlDoc io.Reader) (int, error) {
	respBody, err := c.do(http.MethodPost, "/pages/import", "application/yaml", yamlDoc)
	if err != nil {
		return 0, err
	}
	var r importResponse
	if err := json.Unmarshal(respBody, &r); err != nil {
		return 0, fmt.Errorf("failed to decode import response: %w", err)
	}
	return r.Imported, nil
}

// --- Selections ---

// Select runs one selection on the server.
func (c *Client) Select(req selection.Request) (Selection, error) {
	var sel Selection
	respBody, err := c.jsonRequest(http.MethodPost, "/selection", req)
	if err != nil {
		return sel, err
	}
	if err := json.Unmarshal(respBody, &sel); err != nil {
		return sel, fmt.Errorf("failed to decode selection: %w", err)
	}
	return sel, nil
}

// --- System ---

// Save asks the server to write a snapshot and truncate its log.
func (c *Client) Save() error {
	_, err := c.jsonRequest(http.MethodPost, "/system/save", nil)
	return err
}

// AOFRewrite asks the server to compact its log.
func (c *Client) AOFRewrite() error {
	_, err := c.jsonRequest(http.MethodPost, "/system/aof-rewrite", nil)
	return err
}
