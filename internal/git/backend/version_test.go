package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGitVersionOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want gitVersion
		ok   bool
	}{
		{name: "empty", in: "", ok: false},
		{name: "plain", in: "git version 2.44.0\n", want: gitVersion{major: 2, minor: 44, patch: 0}, ok: true},
		{name: "apple_git", in: "git version 2.39.3 (Apple Git-146)\n", want: gitVersion{major: 2, minor: 39, patch: 3}, ok: true},
		{name: "windows_suffix", in: "git version 2.39.3.windows.1\n", want: gitVersion{major: 2, minor: 39, patch: 3}, ok: true},
		{name: "no_prefix", in: "2.42.1\n", want: gitVersion{major: 2, minor: 42, patch: 1}, ok: true},
		{name: "no_patch", in: "git version 2.42\n", want: gitVersion{major: 2, minor: 42, patch: 0}, ok: true},
		{name: "invalid", in: "git version not-a-version\n", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseGitVersionOutput(tt.in)
			require.Equal(t, tt.ok, ok, "got=%+v", got)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValidateGitVersionOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "git version 2.23.0\n"},
		{in: "git version 2.45.1\n"},
		{in: "git version 3.0.0\n"},
		{in: "git version 2.22.9\n", wantErr: true},
		{in: "git version 1.9.5\n", wantErr: true},
		{in: "garbage", wantErr: true},
	}
	for _, tt := range tests {
		err := validateGitVersionOutput(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
	}
}

func TestMinGitVersion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "2.23.0", MinGitVersion())
}
