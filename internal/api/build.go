package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Build exposes the security-test authoring routes: listing the test
// catalog and moving test source files up and down.
type Build struct {
	client *Client
}

// NewBuild wraps a guarded client.
func NewBuild(client *Client) *Build {
	return &Build{client: client}
}

// Test is one entry in the account's test catalog.
type Test struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Account string `json:"account_id,omitempty"`
	Unit    string `json:"unit,omitempty"`
}

// ListTests returns the full test catalog.
func (b *Build) ListTests() ([]Test, error) {
	respBody, err := b.client.Do(http.MethodGet, "/build/tests", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []Test
	if err := decode(respBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload attaches a source file to a test. The whole file goes up in one
// request; test sources are small.
func (b *Build) Upload(testID, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	fileName := filepath.Base(filePath)
	contentType := "application/octet-stream"
	if strings.HasSuffix(fileName, ".go") || strings.HasSuffix(fileName, ".c") {
		contentType = "text/plain"
	}

	path := fmt.Sprintf("/build/tests/%s/%s", testID, fileName)
	_, err = b.client.DoRaw(http.MethodPost, path, contentType, data)
	return err
}

// Download fetches a test attachment's raw bytes.
func (b *Build) Download(testID, fileName string) ([]byte, error) {
	path := fmt.Sprintf("/build/tests/%s/%s", testID, fileName)
	return b.client.Do(http.MethodGet, path, nil, nil)
}
