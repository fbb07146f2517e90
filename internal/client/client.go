// Package client is a small HTTP client for the netwatch query API.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rsclarke/netwatch/internal/types"
)

type Client struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
}

func NewClient(baseURL, username, password string) *Client {
	return &Client{
		BaseURL:  baseURL,
		Username: username,
		Password: password,
	}
}

// ListTraffic returns traffic records newest first. An empty iface matches
// every interface and a zero limit leaves the server default in place.
func (c *Client) ListTraffic(iface string, limit int) ([]types.TrafficRecord, error) {
	var result []types.TrafficRecord
	if err := c.get("/traffic", query(iface, limit), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ListDevices(iface string) ([]types.DeviceRecord, error) {
	var result []types.DeviceRecord
	if err := c.get("/devices", query(iface, 0), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ListScans(iface string, limit int) ([]types.ScanRecord, error) {
	var result []types.ScanRecord
	if err := c.get("/scans", query(iface, limit), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) get(path string, q url.Values, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.Username, c.Password)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func query(iface string, limit int) url.Values {
	q := url.Values{}
	if iface != "" {
		q.Set("interface", iface)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("%s", errResp.Error)
}
