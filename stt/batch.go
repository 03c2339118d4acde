package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// BatchClient uploads a finished recording and waits for its transcript.
type BatchClient struct {
	URL        string
	HTTPClient *http.Client
	Logger     *log.Logger
}

func NewBatchClient(url string, logger *log.Logger) *BatchClient {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &BatchClient{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		Logger:     logger,
	}
}

type batchResponse struct {
	Transcript *string `json:"transcript"`
	Status     string  `json:"status"`
	Error      string  `json:"error"`
	Message    string  `json:"message"`
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	}
	return "application/octet-stream"
}

// Transcribe sends the file at path as the "audio" field of a multipart
// form and returns the transcript text.
func (c *BatchClient) Transcribe(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set(
		"Content-Disposition",
		fmt.Sprintf(`form-data; name="audio"; filename=%q`, filepath.Base(path)),
	)
	header.Set("Content-Type", contentType(path))
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read recording: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.Logger.Info("upload", "url", c.URL, "bytes", body.Len())
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("read response: %w", err),
		}
	}

	var result batchResponse
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil {
			msg = failureText(result, msg)
		}
		return "", &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("unexpected status code: %d, response body: %s", resp.StatusCode, msg),
		}
	}
	if decodeErr != nil {
		return "", &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("decode response: %w", decodeErr),
		}
	}
	if result.Status == "error" || result.Error != "" {
		return "", &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("%w: %s", ErrServer, failureText(result, "unknown error")),
		}
	}
	if result.Transcript == nil {
		return "", &TransportError{
			Op:  "upload",
			Err: errors.New("response has no transcript"),
		}
	}

	return strings.TrimSpace(*result.Transcript), nil
}

func failureText(r batchResponse, fallback string) string {
	parts := []string{}
	if r.Error != "" {
		parts = append(parts, r.Error)
	}
	if r.Message != "" {
		parts = append(parts, r.Message)
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ": ")
}
