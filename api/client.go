package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/custodia-vault/custodia/interfaces"
)

// Client talks to the custodia HTTP API on behalf of one identity.
type Client struct {
	// ServerAddr is the base URL of the vault server.
	ServerAddr string

	// Identity is sent as the caller's address on every request.
	Identity interfaces.Identity

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.ServerAddr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(IdentityHeader, c.Identity.String())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("could not reach vault server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("vault server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("vault server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not parse response: %w", err)
		}
	}
	return nil
}

// CreateVault provisions a new vault for the client identity as owner.
func (c *Client) CreateVault(req CreateVaultRequest) (*CreateVaultResponse, error) {
	var resp CreateVaultResponse
	if err := c.do(http.MethodPost, "/api/vaults", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckIn refreshes the owner's liveness on a vault.
func (c *Client) CheckIn(id interfaces.VaultID) (*VaultResponse, error) {
	var resp VaultResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/vaults/%d/checkin", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trigger starts recovery on a vault whose inactivity period elapsed.
func (c *Client) Trigger(id interfaces.VaultID) (*VaultResponse, error) {
	var resp VaultResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/vaults/%d/trigger", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Claim releases the storage reference and the wrapped timelock share.
func (c *Client) Claim(id interfaces.VaultID) (*ClaimResponse, error) {
	var resp ClaimResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/vaults/%d/claim", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel terminates a vault.
func (c *Client) Cancel(id interfaces.VaultID) (*VaultResponse, error) {
	var resp VaultResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/vaults/%d/cancel", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetVault returns a vault snapshot.
func (c *Client) GetVault(id interfaces.VaultID) (*VaultResponse, error) {
	var resp VaultResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/vaults/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStatus returns the advisory status view of a vault.
func (c *Client) GetStatus(id interfaces.VaultID) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/vaults/%d/status", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListVaults lists vault IDs filtered by owner or beneficiary address.
func (c *Client) ListVaults(owner, beneficiary string) (*VaultListResponse, error) {
	query := url.Values{}
	if owner != "" {
		query.Set("owner", owner)
	}
	if beneficiary != "" {
		query.Set("beneficiary", beneficiary)
	}

	var resp VaultListResponse
	if err := c.do(http.MethodGet, "/api/vaults?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TotalVaults returns the number of vaults ever created.
func (c *Client) TotalVaults() (uint64, error) {
	var resp VaultCountResponse
	if err := c.do(http.MethodGet, "/api/vaults/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// Events returns ledger events with sequence numbers greater than sinceSeq.
func (c *Client) Events(sinceSeq uint64) ([]interfaces.Event, error) {
	var resp EventsResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/events?since=%d", sinceSeq), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// FetchPayload retrieves the sealed ciphertext for a storage reference. The
// server fetches it from the content store; the client decrypts locally.
func (c *Client) FetchPayload(ref interfaces.ContentID) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/payloads/%s", c.ServerAddr, ref.String()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(IdentityHeader, c.Identity.String())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach vault server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payload endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}
