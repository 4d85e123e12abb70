package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int
		code    errors.ErrorCode
	}{
		{"trailing newline", "4242\n", 4242, ""},
		{"bare", "17", 17, ""},
		{"garbage", "mosquitto", 0, pid.ErrInvalidPID},
		{"zero", "0\n", 0, pid.ErrInvalidPID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".pid")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			got, err := pid.Read(path)
			if tt.code != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.code))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := pid.Read(filepath.Join(t.TempDir(), "absent.pid"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrResourceNotFound))
}

func TestWriteAndRemove(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	name := "odytelem-test"

	require.NoError(t, pid.Write(name))
	got, err := pid.Read(pid.Path(name))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)

	// rewriting our own PID is not a conflict
	require.NoError(t, pid.Write(name))

	require.NoError(t, pid.Remove(name))
	_, err = os.Stat(pid.Path(name))
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, pid.Remove(name))
}

func TestWriteRefusesLiveInstance(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	name := "odytelem-live"

	// the parent of the test binary is alive for the duration of the test
	require.NoError(t, os.WriteFile(pid.Path(name), []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := pid.Write(name)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}
