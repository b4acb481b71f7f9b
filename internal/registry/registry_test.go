package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validRecord() []byte {
	r := make([]byte, 16+64)
	for i := range r {
		r[i] = 'a'
	}
	return r
}

func TestNewAndLookup(t *testing.T) {
	reg, err := New([]User{
		{Username: "alice", PasswordRecord: validRecord(), Repository: "alice-repo", VersioningEnabled: true},
		{Username: "bob", PasswordRecord: validRecord(), Repository: "bob-repo"},
	})
	require.NoError(t, err)

	u, ok := reg.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, "alice-repo", u.Repository)
	require.True(t, u.VersioningEnabled)

	_, ok = reg.Lookup("carol")
	require.False(t, ok)
}

func TestNewRejectsDuplicateUsername(t *testing.T) {
	_, err := New([]User{
		{Username: "alice", PasswordRecord: validRecord(), Repository: "a"},
		{Username: "alice", PasswordRecord: validRecord(), Repository: "b"},
	})
	require.Error(t, err)
}

func TestNewRejectsInvalidRepository(t *testing.T) {
	_, err := New([]User{
		{Username: "alice", PasswordRecord: validRecord(), Repository: "../escape"},
	})
	require.Error(t, err)
}

func TestNewRejectsMalformedPasswordRecord(t *testing.T) {
	_, err := New([]User{
		{Username: "alice", PasswordRecord: []byte("short"), Repository: "a"},
	})
	require.Error(t, err)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestRepositories(t *testing.T) {
	reg, err := New([]User{
		{Username: "alice", PasswordRecord: validRecord(), Repository: "shared"},
		{Username: "bob", PasswordRecord: validRecord(), Repository: "shared"},
		{Username: "carol", PasswordRecord: validRecord(), Repository: "carol-only"},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"shared", "carol-only"}, reg.Repositories())
}
