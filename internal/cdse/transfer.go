package cdse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	defaultChunkSize        = 1 << 20 // 1 MiB
	defaultProgressInterval = 5 * time.Second
	defaultProgressBytes    = 50 << 20 // 50 MiB
)

// TransferConfig configures the streaming download client.
type TransferConfig struct {
	ChunkSize        int
	ProgressInterval time.Duration
	ProgressBytes    int64
	Clock            clockwork.Clock
}

// TransferClient streams remote payloads to disk. A download lands in a
// hidden temp file next to its destination and is renamed into place only
// after the byte count checks out, so a crash or failed transfer never
// leaves a plausible-looking product behind.
type TransferClient struct {
	httpClient *http.Client
	cfg        TransferConfig
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewTransferClient builds a transfer client, filling defaults for unset
// fields. The underlying HTTP client carries no fixed timeout; full
// products run to hours, so the caller's context governs each stream.
func NewTransferClient(cfg TransferConfig, logger zerolog.Logger) *TransferClient {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if cfg.ProgressBytes <= 0 {
		cfg.ProgressBytes = defaultProgressBytes
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TransferClient{
		httpClient: &http.Client{},
		cfg:        cfg,
		clock:      clock,
		logger:     logger.With().Str("component", "transfer").Logger(),
	}
}

// Fetch streams url to dest, authenticating with cred, and returns the
// byte count written. The destination directory must already exist.
func (t *TransferClient) Fetch(ctx context.Context, url, dest string, cred Credential) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, newError(ErrorNetwork, "transfer", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, newError(ErrorNetwork, "transfer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusError("transfer", resp)
	}

	expected := resp.ContentLength
	t.logger.Info().
		Str("dest", filepath.Base(dest)).
		Str("size", sizeLabel(expected)).
		Msg("Download started")

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.partial")
	if err != nil {
		return 0, newError(ErrorFilesystem, "transfer", err)
	}
	tmpPath := tmp.Name()
	discard := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	written, err := t.stream(resp.Body, tmp, dest, expected)
	if err != nil {
		discard()
		return 0, err
	}

	if expected >= 0 && written != expected {
		discard()
		return 0, errorf(ErrorNetwork, "transfer",
			"transfer truncated: got %d of %d bytes", written, expected)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, newError(ErrorFilesystem, "transfer", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, newError(ErrorFilesystem, "transfer", err)
	}

	t.logger.Info().
		Str("dest", filepath.Base(dest)).
		Str("size", humanize.Bytes(uint64(written))).
		Msg("Download complete")
	return written, nil
}

// stream copies the response body into tmp chunk by chunk, reporting
// progress on the configured interval or byte threshold, whichever trips
// first. Read failures are network errors, write failures filesystem.
func (t *TransferClient) stream(body io.Reader, tmp *os.File, dest string, expected int64) (int64, error) {
	buf := make([]byte, t.cfg.ChunkSize)
	var written int64
	lastTime := t.clock.Now()
	var lastBytes int64

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				return written, newError(ErrorFilesystem, "transfer", werr)
			}
			written += int64(n)

			now := t.clock.Now()
			if now.Sub(lastTime) >= t.cfg.ProgressInterval || written-lastBytes >= t.cfg.ProgressBytes {
				ev := t.logger.Info().
					Str("dest", filepath.Base(dest)).
					Str("transferred", humanize.Bytes(uint64(written)))
				if expected > 0 {
					ev = ev.Str("total", humanize.Bytes(uint64(expected))).
						Float64("percent", float64(written)/float64(expected)*100)
				}
				ev.Msg("Download progress")
				lastTime, lastBytes = now, written
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, newError(ErrorNetwork, "transfer", rerr)
		}
	}
}

// FetchAny tries each url in order until one delivers. Auth failures
// return immediately so the caller can force a credential refresh and
// retry the whole chain; so do local filesystem failures, which no other
// endpoint can fix. Network and not-found failures fall through to the
// next url, and the last error surfaces when every endpoint fails.
func (t *TransferClient) FetchAny(ctx context.Context, urls []string, dest string, cred Credential) (int64, string, error) {
	if len(urls) == 0 {
		return 0, "", errorf(ErrorValidation, "transfer", "no download urls")
	}

	var lastErr error
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return 0, "", newError(ErrorNetwork, "transfer", err)
		}

		written, err := t.Fetch(ctx, url, dest, cred)
		if err == nil {
			return written, url, nil
		}
		if !IsNetwork(err) && !IsNotFound(err) {
			return 0, "", err
		}

		t.logger.Warn().
			Str("url", url).
			Err(err).
			Msg("Endpoint failed, trying next")
		lastErr = err
	}
	return 0, "", fmt.Errorf("all %d endpoints failed: %w", len(urls), lastErr)
}

func sizeLabel(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}
