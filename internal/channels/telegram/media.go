package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mymmrac/telego"
)

const (
	// defaultMediaMaxBytes matches the Bot API download limit (20MB).
	defaultMediaMaxBytes int64 = 20 * 1024 * 1024

	getFileAttempts = 3
)

// downloadVoice fetches a voice note into a temp file and returns its path.
// The caller removes the file.
func (c *Channel) downloadVoice(ctx context.Context, fileID string, maxBytes int64) (string, error) {
	file, err := c.getFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if int64(file.FileSize) > maxBytes {
		return "", fmt.Errorf("voice note too large: %d bytes (max %d)", file.FileSize, maxBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download voice note: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download voice note: status %d", resp.StatusCode)
	}

	return saveLimited(resp.Body, filepath.Ext(file.FilePath), maxBytes)
}

// getFile resolves a file id, retrying transient Bot API failures with a
// linear backoff.
func (c *Channel) getFile(ctx context.Context, fileID string) (*telego.File, error) {
	var lastErr error
	for attempt := 1; attempt <= getFileAttempts; attempt++ {
		file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			if file.FilePath == "" {
				return nil, fmt.Errorf("empty file path for file_id %s", fileID)
			}
			return file, nil
		}
		lastErr = err
		if attempt == getFileAttempts {
			break
		}
		slog.Debug("telegram: getFile retry", "file_id", fileID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return nil, fmt.Errorf("get file info after %d attempts: %w", getFileAttempts, lastErr)
}

// saveLimited copies r into a temp file, failing once more than maxBytes
// arrive. Bot API voice notes are OGG/Opus, so that is the default suffix.
func saveLimited(r io.Reader, ext string, maxBytes int64) (string, error) {
	if ext == "" {
		ext = ".ogg"
	}
	f, err := os.CreateTemp("", "turnbuf_voice_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if err == nil && n > maxBytes {
		err = fmt.Errorf("voice note exceeds %d bytes", maxBytes)
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
