// Package keychain manages named identity profiles persisted under the
// user's Outpost configuration directory.
package keychain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// keychainFile is the INI file name for stored profiles
const keychainFile = "keychain.ini"

// DefaultProfile is the profile seeded on first use.
const DefaultProfile = "default"

// ErrProfileNotFound is returned when a named profile does not exist.
// Callers should surface this as a configuration error, not a crash.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a named identity binding: account ID, user handle, and the
// API host it authenticates against.
type Profile struct {
	Name    string
	Account string
	Handle  string
	HQ      string
}

// Configured reports whether the profile carries a real identity. The
// seeded default starts empty and must never be used to authenticate.
func (p Profile) Configured() bool {
	return p.Handle != "" || p.Account != ""
}

// Keychain is a file-backed store of profiles. All writes are whole-file
// rewrites; the last writer wins across processes.
type Keychain struct {
	Location string
}

// New returns a Keychain rooted at ~/.outpost/keychain.ini.
func New() (*Keychain, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return &Keychain{Location: filepath.Join(homeDir, ".outpost", keychainFile)}, nil
}

// NewAt returns a Keychain backed by an explicit file path.
func NewAt(location string) *Keychain {
	return &Keychain{Location: location}
}

// Ensure creates the keychain file and its parent directory if absent,
// seeding an empty default profile. Safe to call repeatedly.
func (k *Keychain) Ensure() error {
	if _, err := os.Stat(k.Location); err == nil {
		return nil
	}
	dir := filepath.Dir(k.Location)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return k.WriteProfile(Profile{Name: DefaultProfile})
}

// ReadProfiles returns every persisted profile. An empty or missing store
// yields only the seeded default.
func (k *Keychain) ReadProfiles() ([]Profile, error) {
	if err := k.Ensure(); err != nil {
		return nil, err
	}
	cfg, err := ini.Load(k.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse keychain %s: %w", k.Location, err)
	}
	var profiles []Profile
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		profiles = append(profiles, profileFromSection(section))
	}
	if len(profiles) == 0 {
		// an existing but truncated store still yields the seeded default
		seed := Profile{Name: DefaultProfile}
		if err := k.WriteProfile(seed); err != nil {
			return nil, err
		}
		profiles = append(profiles, seed)
	}
	return profiles, nil
}

// WriteProfile upserts a profile: an existing section with the same name is
// overwritten in place, otherwise a new section is appended.
func (k *Keychain) WriteProfile(p Profile) error {
	dir := filepath.Dir(k.Location)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	cfg := ini.Empty()
	if _, err := os.Stat(k.Location); err == nil {
		cfg, err = ini.Load(k.Location)
		if err != nil {
			return fmt.Errorf("failed to parse keychain %s: %w", k.Location, err)
		}
	}

	section := cfg.Section(p.Name)
	section.Key("account").SetValue(p.Account)
	section.Key("handle").SetValue(p.Handle)
	section.Key("hq").SetValue(p.HQ)

	if err := cfg.SaveTo(k.Location); err != nil {
		return fmt.Errorf("failed to write keychain %s: %w", k.Location, err)
	}
	return nil
}

// GetProfile resolves a profile by name, returning ErrProfileNotFound when
// no section with that name exists.
func (k *Keychain) GetProfile(name string) (Profile, error) {
	if err := k.Ensure(); err != nil {
		return Profile{}, err
	}
	cfg, err := ini.Load(k.Location)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to parse keychain %s: %w", k.Location, err)
	}
	section, err := cfg.GetSection(name)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %s in %s", ErrProfileNotFound, name, k.Location)
	}
	return profileFromSection(section), nil
}

// profileFromSection reads the known keys of a section. Unknown keys are
// ignored so newer fields round-trip without breaking older binaries.
func profileFromSection(section *ini.Section) Profile {
	return Profile{
		Name:    section.Name(),
		Account: section.Key("account").String(),
		Handle:  section.Key("handle").String(),
		HQ:      section.Key("hq").String(),
	}
}
