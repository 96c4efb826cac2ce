package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

type sendNotificationRequest struct {
	NotificationID string   `json:"notificationId"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	TargetURL      string   `json:"targetUrl"`
	Tokens         []string `json:"tokens"`
}

type sendNotificationResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Result  *struct {
		SuccessfulTokens  []string `json:"successfulTokens"`
		InvalidTokens     []string `json:"invalidTokens"`
		RateLimitedTokens []string `json:"rateLimitedTokens"`
	} `json:"result,omitempty"`
}

// NotificationClient envoie une notification au endpoint fourni par le
// client Farcaster (un seul token par envoi).
type NotificationClient struct {
	http *http.Client
}

func NewNotificationClient(httpClient *http.Client) *NotificationClient {
	return &NotificationClient{http: httpClient}
}

func (c *NotificationClient) Send(ctx context.Context, details domain.NotificationDetails, notificationID string, n domain.Notification, targetURL string) (domain.SendResult, error) {
	payload, err := json.Marshal(sendNotificationRequest{
		NotificationID: notificationID,
		Title:          n.Title,
		Body:           n.Body,
		TargetURL:      targetURL,
		Tokens:         []string{details.Token},
	})
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, details.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("read notification response: %w", err)
	}

	var out sendNotificationResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 300 {
			return domain.SendResult{}, fmt.Errorf("decode notification response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("notification endpoint returned %d", resp.StatusCode)
		}
		return domain.SendResult{Success: false, Message: msg, RateLimited: resp.StatusCode == http.StatusTooManyRequests}, nil
	}

	res := domain.SendResult{Success: true, Message: out.Message}
	if out.Success != nil && !*out.Success {
		res.Success = false
	}
	if out.Result != nil {
		res.InvalidToken = slices.Contains(out.Result.InvalidTokens, details.Token)
		res.RateLimited = slices.Contains(out.Result.RateLimitedTokens, details.Token)
		if res.InvalidToken || res.RateLimited {
			res.Success = false
		}
	}
	if !res.Success && res.Message == "" {
		switch {
		case res.InvalidToken:
			res.Message = "notification token is invalid"
		case res.RateLimited:
			res.Message = "notification rate limited"
		default:
			res.Message = "notification rejected"
		}
	}
	return res, nil
}
