// Package fetch downloads and unpacks the public CMS SynPUF archives. The
// download is a cancellable, retryable external step; everything downstream
// of it operates on local files only.
package fetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the CMS download root for the SynPUF sample files.
const DefaultBaseURL = "https://www.cms.gov/Research-Statistics-Data-and-Systems/Downloadable-Public-Use-Files/SynPUFs/Downloads/"

// Archive names one remote zip and the local label it unpacks under.
type Archive struct {
	Label string
	Name  string
}

// DefaultArchives lists the sample-20 member and claims archives.
func DefaultArchives() []Archive {
	return []Archive{
		{Label: "benefit", Name: "DE1_0_2009_Beneficiary_Summary_File_Sample_20.zip"},
		{Label: "claim", Name: "DE1_0_2008_to_2010_Outpatient_Claims_Sample_20.zip"},
	}
}

// Client downloads archives with bounded retries.
type Client struct {
	http    *http.Client
	retries int
	log     zerolog.Logger
}

// NewClient creates a download client. retries counts attempts beyond the
// first; timeout bounds each attempt.
func NewClient(retries int, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		retries: retries,
		log:     log,
	}
}

// Download fetches url into dest, retrying transport errors and 5xx responses
// with exponential backoff. 4xx responses fail immediately; they will not
// improve on retry. The file is written to a temp path and renamed so a
// failed download never leaves a partial dest behind.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 200 * time.Millisecond
			c.log.Warn().Str("url", url).Int("attempt", attempt).Err(lastErr).Msg("download failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = c.tryDownload(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("download %s failed after %d retries: %w", url, c.retries, lastErr)
}

// permanentError marks failures that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (c *Client) tryDownload(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &permanentError{err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return &permanentError{fmt.Errorf("download %s: %s", url, resp.Status)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return &permanentError{err}
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return os.Rename(tmp.Name(), dest)
}

// Unzip extracts every file in zipPath under destDir and returns their paths.
// Entries that would escape destDir are rejected.
func Unzip(zipPath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", zipPath, err)
	}
	defer zr.Close()

	var extracted []string
	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("zip entry %q escapes %s", f.Name, destDir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, err
		}
		if err := extractFile(f, target); err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		extracted = append(extracted, target)
	}
	return extracted, nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FetchArchive downloads one archive into dataDir and unpacks it in place.
func (c *Client) FetchArchive(ctx context.Context, baseURL string, a Archive, dataDir string) ([]string, error) {
	zipPath := filepath.Join(dataDir, a.Label+".zip")
	url := baseURL + a.Name

	c.log.Info().Str("url", url).Msg("downloading archive")
	if err := c.Download(ctx, url, zipPath); err != nil {
		return nil, err
	}

	c.log.Info().Str("zip", zipPath).Msg("extracting archive")
	files, err := Unzip(zipPath, dataDir)
	if err != nil {
		return nil, err
	}
	c.log.Info().Int("files", len(files)).Str("dir", dataDir).Msg("archive extracted")
	return files, nil
}
