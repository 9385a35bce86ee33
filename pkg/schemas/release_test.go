package schemas

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelease(t *testing.T) {
	tests := []struct {
		name     string
		branch   string
		revision string
		wantErr  bool
	}{
		{"valid", "main", "a1b2c3d4", false},
		{"empty branch", "", "a1b2c3d4", true},
		{"empty revision", "main", "", true},
		{"whitespace only branch", "   ", "a1b2c3d4", true},
		{"both empty", "", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewRelease(tc.branch, tc.revision)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.branch, r.Branch)
			assert.Equal(t, tc.revision, r.Revision)
		})
	}
}

func TestReleaseTag(t *testing.T) {
	tests := []struct {
		name     string
		branch   string
		revision string
		expected string
	}{
		{"plain branch", "main", "a1b2c3d4", "main-a1b2c3d4"},
		{"branch with slash", "feature/auth", "e5f6g7h8", "feature-auth-e5f6g7h8"},
		{"uppercase branch", "Feature/Auth", "E5F6G7H8", "feature-auth-e5f6g7h8"},
		{"nested branch", "release/2024/q1", "a1b2c3d4e5f6", "release-2024-q1-a1b2c3d4"},
		{"long revision truncated", "main", "a1b2c3d4e5f6a7b8c9d0", "main-a1b2c3d4"},
		{"short revision kept", "main", "a1b2c3d", "main-a1b2c3d"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewRelease(tc.branch, tc.revision)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, r.Tag())
		})
	}
}

func TestReleaseTagDeterministicAndCollisionFree(t *testing.T) {
	a, err := NewRelease("feature/auth", "e5f6g7h8")
	require.NoError(t, err)

	b, err := NewRelease("feature/auth", "e5f6g7h8")
	require.NoError(t, err)

	// Same (branch, revision) pair always yields the same tag.
	assert.Equal(t, a.Tag(), b.Tag())

	pairs := []struct{ branch, revision string }{
		{"main", "a1b2c3d4"},
		{"main", "b2c3d4e5"},
		{"feature/auth", "a1b2c3d4"},
		{"feature/payments", "a1b2c3d4"},
		{"fix/auth", "a1b2c3d4"},
	}

	seen := map[string]struct{}{}

	for _, p := range pairs {
		r, err := NewRelease(p.branch, p.revision)
		require.NoError(t, err)

		_, dup := seen[r.Tag()]
		assert.False(t, dup, "tag %q collided", r.Tag())
		seen[r.Tag()] = struct{}{}
	}
}

func TestReleaseImageRefAndArchiveName(t *testing.T) {
	r, err := NewRelease("main", "a1b2c3d4")
	require.NoError(t, err)

	assert.Equal(t, "registry.example.com/app:main-a1b2c3d4", r.ImageRef("registry.example.com/app"))
	assert.Equal(t, "main-a1b2c3d4.tar", r.ArchiveName())
}

func TestDeploymentKey(t *testing.T) {
	d1 := Deployment{ID: "run-1", Target: "production"}
	d2 := Deployment{ID: "run-1", Target: "production"}
	d3 := Deployment{ID: "run-2", Target: "production"}

	assert.Equal(t, d1.Key(), d2.Key())
	assert.NotEqual(t, d1.Key(), d3.Key())
}
