// Package tokens persists bearer and refresh tokens across CLI
// invocations, keyed by (handle, API host).
package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// tokensFile is the JSON file name for cached tokens
const tokensFile = "tokens.json"

// ErrCacheCorrupt is returned when the token cache cannot be parsed. The
// cache is rebuilt by logging in again; this is never treated as fatal.
var ErrCacheCorrupt = errors.New("token cache is corrupt")

// Epoch is a UTC timestamp in epoch seconds, fractional allowed. It is
// stored as a numeric string so the value round-trips losslessly through
// the cache file, but the identity endpoint may return it as a bare
// number; both forms unmarshal.
type Epoch string

// MarshalJSON encodes the epoch as a quoted numeric string.
func (e Epoch) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(e))
}

// UnmarshalJSON accepts either a JSON number or a numeric string.
func (e *Epoch) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = Epoch(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expires is neither a number nor a string: %s", data)
	}
	*e = Epoch(n.String())
	return nil
}

// Time converts the epoch to a time.Time. The zero Epoch and unparseable
// values return the zero time and an error.
func (e Epoch) Time() (time.Time, error) {
	f, err := strconv.ParseFloat(string(e), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expires value %q: %w", string(e), err)
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC(), nil
}

// Record holds one (handle, hq) pair's tokens. Tokens are opaque strings;
// an empty field means absent.
type Record struct {
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Expires      Epoch  `json:"expires,omitempty"`
}

// Merge overlays other's fields onto r. Fields omitted from other keep
// their prior values; this mirrors the identity API's refresh contract,
// which may omit refresh_token to mean "keep using the old one".
func (r Record) Merge(other Record) Record {
	if other.Token != "" {
		r.Token = other.Token
	}
	if other.RefreshToken != "" {
		r.RefreshToken = other.RefreshToken
	}
	if other.Expires != "" {
		r.Expires = other.Expires
	}
	return r
}

// Cache is the file-backed token store. The file holds a nested mapping
// handle -> hq -> Record, shared by every profile on the machine.
type Cache struct {
	Location string
}

// New returns a Cache rooted at ~/.outpost/tokens.json.
func New() (*Cache, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return &Cache{Location: filepath.Join(homeDir, ".outpost", tokensFile)}, nil
}

// NewAt returns a Cache backed by an explicit file path.
func NewAt(location string) *Cache {
	return &Cache{Location: location}
}

// Ensure creates the cache file and its parent directory if absent,
// initialized to an empty mapping. Safe to call repeatedly.
func (c *Cache) Ensure() error {
	if _, err := os.Stat(c.Location); err == nil {
		return nil
	}
	dir := filepath.Dir(c.Location)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(c.Location, []byte("{}"), 0600); err != nil {
		return fmt.Errorf("failed to write token cache %s: %w", c.Location, err)
	}
	return nil
}

// ReadAll returns the full handle -> hq -> Record mapping.
func (c *Cache) ReadAll() (map[string]map[string]Record, error) {
	if err := c.Ensure(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to read token cache %s: %w", c.Location, err)
	}
	all := map[string]map[string]Record{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheCorrupt, c.Location, err)
	}
	return all, nil
}

// Get returns the record for a (handle, hq) pair. The boolean reports
// whether a record was present.
func (c *Cache) Get(handle, hq string) (Record, bool, error) {
	all, err := c.ReadAll()
	if err != nil {
		return Record{}, false, err
	}
	record, ok := all[handle][hq]
	return record, ok, nil
}

// Save merges record into the entry for (handle, hq) and rewrites the
// whole cache. Other handles and hosts are untouched.
func (c *Cache) Save(handle, hq string, record Record) error {
	all, err := c.ReadAll()
	if err != nil {
		return err
	}
	return c.write(all, handle, hq, all[handle][hq].Merge(record))
}

// Replace overwrites the entry for (handle, hq) wholesale, discarding any
// prior fields. Password logins use this; refreshes merge via Save.
func (c *Cache) Replace(handle, hq string, record Record) error {
	all, err := c.ReadAll()
	if err != nil {
		return err
	}
	return c.write(all, handle, hq, record)
}

func (c *Cache) write(all map[string]map[string]Record, handle, hq string, record Record) error {
	if all[handle] == nil {
		all[handle] = map[string]Record{}
	}
	all[handle][hq] = record

	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}
	if err := os.WriteFile(c.Location, data, 0600); err != nil {
		return fmt.Errorf("failed to write token cache %s: %w", c.Location, err)
	}
	return nil
}
