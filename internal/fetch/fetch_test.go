package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(retries int) *Client {
	return NewClient(retries, 5*time.Second, zerolog.Nop())
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "file.zip")
	err := testClient(3).Download(context.Background(), srv.URL, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.EqualValues(t, 3, calls.Load())
}

func TestDownloadGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "file.zip")
	err := testClient(2).Download(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load(), "first attempt plus two retries")
	assert.NoFileExists(t, dest, "failed download leaves no partial file")
}

func TestDownloadDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "file.zip")
	err := testClient(5).Download(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestDownloadHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "file.zip")
	err := testClient(3).Download(ctx, srv.URL, dest)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestUnzip(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"members.csv":       "DESYNPUF_ID\nA001\n",
		"nested/readme.txt": "hello",
	})

	destDir := t.TempDir()
	files, err := Unzip(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	data, err := os.ReadFile(filepath.Join(destDir, "members.csv"))
	require.NoError(t, err)
	assert.Equal(t, "DESYNPUF_ID\nA001\n", string(data))

	data, err = os.ReadFile(filepath.Join(destDir, "nested", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUnzipRejectsTraversal(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"../evil.txt": "nope"})

	destDir := t.TempDir()
	_, err := Unzip(zipPath, destDir)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(destDir), "evil.txt"))
}

func TestFetchArchive(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"members.csv": "DESYNPUF_ID\n"})
	zipData, err := os.ReadFile(zipPath)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/DE_test.zip", r.URL.Path)
		w.Write(zipData)
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	files, err := testClient(1).FetchArchive(context.Background(), srv.URL+"/", Archive{Label: "benefit", Name: "DE_test.zip"}, dataDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.FileExists(t, filepath.Join(dataDir, "benefit.zip"))
	assert.FileExists(t, filepath.Join(dataDir, "members.csv"))
}
