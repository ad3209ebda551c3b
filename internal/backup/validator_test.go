package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaguard/schemaguard/pkg/logger"
)

func writeBackup(t *testing.T, dir, id string, content []byte, withChecksum bool) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".dump"), content, 0o644))
	if withChecksum {
		sum := sha256.Sum256(content)
		line := hex.EncodeToString(sum[:]) + "  " + id + ".dump\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, id+".sha256"), []byte(line), 0o644))
	}
}

func newTestValidator(t *testing.T) (*Validator, string) {
	t.Helper()
	dir := t.TempDir()
	return NewValidator(Config{Dir: dir}, nil, logger.New("test")), dir
}

func TestValidateBackupPasses(t *testing.T) {
	v, dir := newTestValidator(t)
	writeBackup(t, dir, "nightly-20260829", []byte("pg_dump payload"), true)

	report, err := v.ValidateBackup(context.Background(), "nightly-20260829")
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, 100, report.Score)
	assert.Len(t, report.Checks, 3)
}

func TestValidateBackupMissingArtifact(t *testing.T) {
	v, _ := newTestValidator(t)

	report, err := v.ValidateBackup(context.Background(), "no-such-backup")
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Equal(t, 0, report.Score)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "artifact_exists", report.Checks[0].Name)
}

func TestValidateBackupEmptyArtifact(t *testing.T) {
	v, dir := newTestValidator(t)
	writeBackup(t, dir, "empty", nil, true)

	report, err := v.ValidateBackup(context.Background(), "empty")
	require.NoError(t, err)
	assert.False(t, report.Passed)

	for _, c := range report.Checks {
		if c.Name == "artifact_non_empty" {
			assert.False(t, c.Passed)
		}
	}
}

func TestValidateBackupChecksumMismatch(t *testing.T) {
	v, dir := newTestValidator(t)
	writeBackup(t, dir, "tampered", []byte("original"), true)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tampered.dump"), []byte("modified"), 0o644))

	report, err := v.ValidateBackup(context.Background(), "tampered")
	require.NoError(t, err)
	assert.False(t, report.Passed)

	for _, c := range report.Checks {
		if c.Name == "checksum" {
			assert.False(t, c.Passed)
			assert.Contains(t, c.Message, "mismatch")
		}
	}
}

func TestValidateBackupMissingChecksumFails(t *testing.T) {
	v, dir := newTestValidator(t)
	writeBackup(t, dir, "unsigned", []byte("payload"), false)

	report, err := v.ValidateBackup(context.Background(), "unsigned")
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Equal(t, 66, report.Score)
}

func TestValidateBackupRequiresID(t *testing.T) {
	v, _ := newTestValidator(t)
	_, err := v.ValidateBackup(context.Background(), "")
	assert.Error(t, err)
}

func TestManifestSkippedWithoutRepository(t *testing.T) {
	v, dir := newTestValidator(t)
	writeBackup(t, dir, "with-manifest", []byte("payload"), true)

	manifest := Manifest{CreatedAt: time.Now(), Tables: map[string]int64{"public.orders": 100}}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "with-manifest.manifest.json"), data, 0o644))

	report, err := v.ValidateBackup(context.Background(), "with-manifest")
	require.NoError(t, err)
	// No repository, so parity is not checked.
	assert.Len(t, report.Checks, 3)
	assert.True(t, report.Passed)
}

func TestLatestBackupID(t *testing.T) {
	v, dir := newTestValidator(t)
	writeBackup(t, dir, "older", []byte("a"), false)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "older.dump"), old, old))
	writeBackup(t, dir, "newer", []byte("b"), false)

	id, err := v.LatestBackupID()
	require.NoError(t, err)
	assert.Equal(t, "newer", id)
}

func TestLatestBackupIDEmptyDir(t *testing.T) {
	v, _ := newTestValidator(t)
	_, err := v.LatestBackupID()
	assert.Error(t, err)
}
