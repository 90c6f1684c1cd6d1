package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/channels"
)

const (
	defaultSTTTimeoutSeconds = 30
	sttTranscribeEndpoint    = "/transcribe_audio"
	sttMaxResponseBytes      = 1 << 20
)

type sttResponse struct {
	Transcript string `json:"transcript"`
}

// transcribeAudio posts a voice note to the configured STT proxy and returns
// the transcript. It is a no-op ("", nil) when no proxy is configured or
// filePath is empty.
func (c *Channel) transcribeAudio(ctx context.Context, filePath string) (string, error) {
	if c.config.STTProxyURL == "" || filePath == "" {
		return "", nil
	}

	timeout := time.Duration(c.config.STTTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultSTTTimeoutSeconds * time.Second
	}

	body, contentType, err := c.buildSTTForm(filePath)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.config.STTProxyURL + sttTranscribeEndpoint
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("stt: build request to %q: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.config.STTAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.STTAPIKey)
	}

	slog.Debug("telegram: calling STT proxy", "url", endpoint, "file", filepath.Base(filePath))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: request to %q failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, sttMaxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("stt: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stt: upstream returned %d: %s", resp.StatusCode, channels.Truncate(string(raw), 200))
	}

	var result sttResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("stt: parse response JSON: %w", err)
	}

	slog.Debug("telegram: STT transcript received",
		"length", len(result.Transcript),
		"preview", channels.Truncate(result.Transcript, 80),
	)
	return result.Transcript, nil
}

// buildSTTForm encodes the audio file (and optional tenant_id) as
// multipart/form-data.
func (c *Channel) buildSTTForm(filePath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("stt: open audio file %q: %w", filePath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, "", fmt.Errorf("stt: create form file field: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("stt: write audio bytes to form: %w", err)
	}
	if c.config.STTTenantID != "" {
		if err := w.WriteField("tenant_id", c.config.STTTenantID); err != nil {
			return nil, "", fmt.Errorf("stt: write tenant_id field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("stt: close multipart writer: %w", err)
	}
	return &body, w.FormDataContentType(), nil
}
