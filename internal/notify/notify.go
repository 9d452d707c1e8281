// Package notify delivers snapshot notifications to the chat relay.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"camwatch/internal/core"
	"camwatch/internal/logger"
	"camwatch/internal/store"
)

// Dispatcher sends one snapshot with a caption to a chat target. A failed
// delivery is never fatal to the calling worker.
type Dispatcher interface {
	Notify(ctx context.Context, target store.ChatTarget, imagePath, caption string) error
}

// RelayClient posts snapshots to the relay endpoint with bounded retry.
// Duplicate sends on retry are possible and acceptable; the relay gives no
// idempotency guarantee.
type RelayClient struct {
	baseURL    string
	client     *http.Client
	attempts   int
	retryDelay time.Duration
	logger     *logger.Logger
}

func NewRelayClient(baseURL string, logger *logger.Logger) *RelayClient {
	return &RelayClient{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		attempts:   3,
		retryDelay: 2 * time.Second,
		logger:     logger,
	}
}

// Notify performs up to 3 attempts, 2 seconds apart. The first success
// short-circuits; exhausting all attempts logs a permanent failure and
// returns an error wrapping core.ErrTransientDelivery.
func (c *RelayClient) Notify(ctx context.Context, target store.ChatTarget, imagePath, caption string) error {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := c.send(ctx, target, imagePath, caption); err != nil {
			lastErr = err
			c.logger.Warning("Notification attempt %d/%d for chat %s failed: %v", attempt, c.attempts, target.ChatID, err)
			if attempt < c.attempts {
				select {
				case <-time.After(c.retryDelay):
				case <-ctx.Done():
					return fmt.Errorf("%w: %v", core.ErrTransientDelivery, ctx.Err())
				}
			}
			continue
		}
		return nil
	}

	c.logger.Error("Failed to deliver notification to chat %s after %d attempts: %v", target.ChatID, c.attempts, lastErr)
	return fmt.Errorf("%w: %v", core.ErrTransientDelivery, lastErr)
}

// send performs a single multipart POST of the image and caption.
func (c *RelayClient) send(ctx context.Context, target store.ChatTarget, imagePath, caption string) error {
	photo, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer photo.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("photo", photo.Name())
	if err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := io.Copy(part, photo); err != nil {
		return fmt.Errorf("failed to copy snapshot into form: %w", err)
	}

	form.WriteField("chat_id", target.ChatID)
	form.WriteField("code", target.Code)
	form.WriteField("caption", caption)

	if err := form.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send_image", &body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}
