package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Run codes accepted by EnableTest.
const (
	RunDaily   = "daily"
	RunWeekly  = "weekly"
	RunMonthly = "monthly"
	RunOnce    = "once"
	RunDebug   = "debug"
)

// Detect exposes the continuous-testing routes: endpoint registration,
// the active test queue, and probe activity.
type Detect struct {
	client *Client
}

// NewDetect wraps a guarded client.
func NewDetect(client *Client) *Detect {
	return &Detect{client: client}
}

// QueueEntry is one active test in the account's queue.
type QueueEntry struct {
	Test    string   `json:"test"`
	RunCode string   `json:"run_code"`
	Tags    []string `json:"tags,omitempty"`
	Started string   `json:"started,omitempty"`
}

// Probe is one registered endpoint probe.
type Probe struct {
	EndpointID string `json:"endpoint_id"`
	Hostname   string `json:"hostname"`
	LastSeen   string `json:"last_seen,omitempty"`
	Tags       string `json:"tags,omitempty"`
}

// RegisterEndpoint registers a new endpoint and returns its probe token.
func (d *Detect) RegisterEndpoint(name, tags string) (string, error) {
	respBody, err := d.client.Do(http.MethodPost, "/detect/endpoint", nil, map[string]string{
		"id":   name,
		"tags": tags,
	})
	if err != nil {
		return "", err
	}
	return string(respBody), nil
}

// DeleteEndpoint removes a registered endpoint.
func (d *Detect) DeleteEndpoint(id string) error {
	_, err := d.client.Do(http.MethodDelete, "/detect/endpoint/"+id, nil, nil)
	return err
}

// EnableTest adds a test to the active queue under a run code.
func (d *Detect) EnableTest(id, runCode string, tags []string) error {
	_, err := d.client.Do(http.MethodPost, "/detect/queue/"+id, nil, map[string]any{
		"run_code": runCode,
		"tags":     tags,
	})
	return err
}

// DisableTest removes a test from the active queue.
func (d *Detect) DisableTest(id string) error {
	_, err := d.client.Do(http.MethodDelete, "/detect/queue/"+id, nil, nil)
	return err
}

// Queue lists all tests in the active queue.
func (d *Detect) Queue() ([]QueueEntry, error) {
	respBody, err := d.client.Do(http.MethodGet, "/detect/queue", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []QueueEntry
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Probes lists endpoint probes seen within the look-back window.
func (d *Detect) Probes(days int) ([]Probe, error) {
	query := url.Values{}
	query.Set("days", strconv.Itoa(days))

	respBody, err := d.client.Do(http.MethodGet, "/detect/probes", query, nil)
	if err != nil {
		return nil, err
	}
	var out []Probe
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Result views served by the activity route.
const (
	ViewLogs     = "logs"
	ViewDays     = "days"
	ViewProbes   = "probes"
	ViewInsights = "insights"
)

// ActivityRecord is one detect result row.
type ActivityRecord struct {
	Date       string `json:"date"`
	ID         string `json:"id"`
	Test       string `json:"test"`
	EndpointID string `json:"endpoint_id"`
	Status     int    `json:"status"`
	Observed   bool   `json:"observed,omitempty"`
}

// ActivityFilter narrows an activity query. The zero value means "all
// results in the look-back window".
type ActivityFilter struct {
	Days      int
	Tests     []string
	Endpoints []string
	Statuses  []string
}

func (f ActivityFilter) query(view string) url.Values {
	finish := time.Now().UTC()
	start := finish.AddDate(0, 0, -f.Days)

	query := url.Values{}
	query.Set("view", view)
	query.Set("start", start.Format(time.RFC3339))
	query.Set("finish", finish.Format(time.RFC3339))
	if len(f.Tests) > 0 {
		query.Set("tests", strings.Join(f.Tests, ","))
	}
	if len(f.Endpoints) > 0 {
		query.Set("endpoints", strings.Join(f.Endpoints, ","))
	}
	if len(f.Statuses) > 0 {
		query.Set("status", strings.Join(f.Statuses, ","))
	}
	return query
}

// ActivityLogs returns individual result rows for the filter window.
func (d *Detect) ActivityLogs(filter ActivityFilter) ([]ActivityRecord, error) {
	respBody, err := d.client.Do(http.MethodGet, "/detect/activity", filter.query(ViewLogs), nil)
	if err != nil {
		return nil, err
	}
	var out []ActivityRecord
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActivityProbes returns result rows grouped by endpoint.
func (d *Detect) ActivityProbes(filter ActivityFilter) (map[string][]ActivityRecord, error) {
	respBody, err := d.client.Do(http.MethodGet, "/detect/activity", filter.query(ViewProbes), nil)
	if err != nil {
		return nil, err
	}
	var out map[string][]ActivityRecord
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Activity returns the raw document for any other result view.
func (d *Detect) Activity(view string, filter ActivityFilter) (any, error) {
	respBody, err := d.client.Do(http.MethodGet, "/detect/activity", filter.query(view), nil)
	if err != nil {
		return nil, err
	}
	var out any
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SocialStats pulls per-day result counts for one test, keyed first by
// day, then by status code.
func (d *Detect) SocialStats(testID string, days int) (map[string]map[string]int, error) {
	query := url.Values{}
	query.Set("days", strconv.Itoa(days))

	respBody, err := d.client.Do(http.MethodGet, "/detect/"+testID+"/social", query, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]map[string]int
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search looks a CVE identifier up in the NVD.
func (d *Detect) Search(cve string) (any, error) {
	respBody, err := d.client.Do(http.MethodGet, "/detect/search/"+cve, nil, nil)
	if err != nil {
		return nil, err
	}
	var out any
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rules lists all verified security rules.
func (d *Detect) Rules() (any, error) {
	respBody, err := d.client.Do(http.MethodGet, "/detect/rules", nil, nil)
	if err != nil {
		return nil, err
	}
	var out any
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Observe marks a result row as observed.
func (d *Detect) Observe(rowID string, value int) error {
	_, err := d.client.Do(http.MethodPost, "/detect/observe", nil, map[string]any{
		"row_id": rowID,
		"value":  value,
	})
	return err
}
