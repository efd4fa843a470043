package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Partner exposes the partner-integration routes: attaching an EDR to the
// account, querying its endpoints, and deploying probes through it.
type Partner struct {
	client *Client
}

// NewPartner wraps a guarded client.
func NewPartner(client *Client) *Partner {
	return &Partner{client: client}
}

// PartnerEndpoint is one host known to an attached partner.
type PartnerEndpoint struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Version  string `json:"version,omitempty"`
}

// Attach connects a partner to the account.
func (p *Partner) Attach(partner, api, user, secret string) (map[string]any, error) {
	body := map[string]string{"api": api, "user": user, "secret": secret}
	respBody, err := p.client.Do(http.MethodPost, "/partner/"+partner, nil, body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Detach disconnects a partner from the account.
func (p *Partner) Detach(partner string) error {
	_, err := p.client.Do(http.MethodDelete, "/partner/"+partner, nil, nil)
	return err
}

// Block reports a test to a partner for blocking.
func (p *Partner) Block(partner, testID string) (map[string]any, error) {
	respBody, err := p.client.Do(http.MethodPost, "/partner/block/"+partner, nil, map[string]string{"test_id": testID})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Endpoints lists hosts known to a partner, paginated by offset/count.
func (p *Partner) Endpoints(partner, platform, hostname string, offset, count int) ([]PartnerEndpoint, error) {
	query := url.Values{}
	query.Set("platform", platform)
	query.Set("hostname", hostname)
	query.Set("offset", strconv.Itoa(offset))
	query.Set("count", strconv.Itoa(count))

	respBody, err := p.client.Do(http.MethodGet, "/partner/endpoints/"+partner, query, nil)
	if err != nil {
		return nil, err
	}
	var out []PartnerEndpoint
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateWebhook mints webhook credentials an EDR can use to forward
// alerts back for automatic suppression.
func (p *Partner) GenerateWebhook(partner string) (map[string]any, error) {
	respBody, err := p.client.Do(http.MethodGet, "/partner/suppress/"+partner, nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Deploy rolls probes out to hosts associated with a partner.
func (p *Partner) Deploy(partner string, hostIDs []string) (map[string]any, error) {
	if len(hostIDs) == 0 {
		return nil, fmt.Errorf("at least one host ID is required")
	}
	respBody, err := p.client.Do(http.MethodPost, "/partner/deploy/"+partner, nil, map[string][]string{"host_ids": hostIDs})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}
