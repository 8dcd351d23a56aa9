package census

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStateKey(t *testing.T) (pub string, seed []byte) {
	t.Helper()
	kp, err := nkeys.CreateUser()
	require.NoError(t, err)
	pub, err = kp.PublicKey()
	require.NoError(t, err)
	seed, err = kp.Seed()
	require.NoError(t, err)
	return pub, seed
}

func TestTrackedStateValidate(t *testing.T) {
	tests := []struct {
		name    string
		state   TrackedState
		wantErr error
	}{
		{"valid", TrackedState{Name: "twopercent", Key: "UABC"}, nil},
		{"missing name", TrackedState{Key: "UABC"}, ErrEmptyStateName},
		{"missing key", TrackedState{Name: "twopercent"}, ErrEmptyStateKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseStateKey(t *testing.T) {
	pub, seed := newStateKey(t)

	got, err := ParseStateKey(pub)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	got, err = ParseStateKey("  " + pub + "\n")
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	got, err = ParseStateKey(string(seed))
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	_, err = ParseStateKey("")
	assert.ErrorIs(t, err, ErrEmptyStateKey)

	_, err = ParseStateKey("not-a-key")
	assert.ErrorIs(t, err, ErrInvalidStateKey)
}

func TestLoadStateKey(t *testing.T) {
	pub, seed := newStateKey(t)
	dir := t.TempDir()

	pubFile := filepath.Join(dir, "twopercent.publickey")
	require.NoError(t, os.WriteFile(pubFile, []byte(pub+"\n"), 0644))
	got, err := LoadStateKey(pubFile)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	seedFile := filepath.Join(dir, "twopercent.seed")
	require.NoError(t, os.WriteFile(seedFile, seed, 0600))
	got, err = LoadStateKey(seedFile)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	_, err = LoadStateKey(filepath.Join(dir, "missing.publickey"))
	assert.Error(t, err)

	badFile := filepath.Join(dir, "bad.publickey")
	require.NoError(t, os.WriteFile(badFile, []byte("garbage"), 0644))
	_, err = LoadStateKey(badFile)
	assert.ErrorIs(t, err, ErrInvalidStateKey)
}
