package keychain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempKeychain(t *testing.T) *Keychain {
	t.Helper()
	return NewAt(filepath.Join(t.TempDir(), ".outpost", "keychain.ini"))
}

func TestEnsureSeedsDefaultProfile(t *testing.T) {
	kc := tempKeychain(t)

	require.NoError(t, kc.Ensure())
	require.NoError(t, kc.Ensure(), "Ensure must be idempotent")

	profiles, err := kc.ReadProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, DefaultProfile, profiles[0].Name)
	assert.False(t, profiles[0].Configured())
}

func TestReadProfilesReseedsTruncatedStore(t *testing.T) {
	kc := tempKeychain(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(kc.Location), 0700))
	require.NoError(t, os.WriteFile(kc.Location, []byte(""), 0600))

	profiles, err := kc.ReadProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, DefaultProfile, profiles[0].Name)

	// the seed is persisted, not just synthesized
	got, err := kc.GetProfile(DefaultProfile)
	require.NoError(t, err)
	assert.False(t, got.Configured())
}

func TestWriteProfileRoundTrip(t *testing.T) {
	kc := tempKeychain(t)

	want := Profile{
		Name:    "staging",
		Account: "acc-123",
		Handle:  "u@x.com",
		HQ:      "https://api.staging.example.com",
	}
	require.NoError(t, kc.WriteProfile(want))

	got, err := kc.GetProfile("staging")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteProfileUpsert(t *testing.T) {
	kc := tempKeychain(t)

	require.NoError(t, kc.WriteProfile(Profile{Name: "default", Account: "a1", Handle: "old@x.com", HQ: "https://h1"}))
	require.NoError(t, kc.WriteProfile(Profile{Name: "default", Account: "a2", Handle: "new@x.com", HQ: "https://h2"}))

	got, err := kc.GetProfile("default")
	require.NoError(t, err)
	assert.Equal(t, "a2", got.Account)
	assert.Equal(t, "new@x.com", got.Handle)
	assert.Equal(t, "https://h2", got.HQ)

	profiles, err := kc.ReadProfiles()
	require.NoError(t, err)
	assert.Len(t, profiles, 1, "upsert must not duplicate the section")
}

func TestGetProfileNotFound(t *testing.T) {
	kc := tempKeychain(t)
	require.NoError(t, kc.Ensure())

	for _, name := range []string{"missing", "Default", "prod"} {
		_, err := kc.GetProfile(name)
		assert.ErrorIs(t, err, ErrProfileNotFound, name)
	}
}

func TestUnknownKeysIgnored(t *testing.T) {
	kc := tempKeychain(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(kc.Location), 0700))

	contents := "[default]\naccount = a1\nhandle = u@x.com\nhq = https://h\nregion = us-west-2\n"
	require.NoError(t, os.WriteFile(kc.Location, []byte(contents), 0600))

	got, err := kc.GetProfile("default")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.Account)
	assert.Equal(t, "u@x.com", got.Handle)
	assert.Equal(t, "https://h", got.HQ)
}
