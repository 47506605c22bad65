package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/provider"
)

type sendRequest struct {
	TenantID     string         `json:"tenant_id"`
	Channel      string         `json:"channel"`
	Recipient    string         `json:"recipient"`
	TemplateCode string         `json:"template_code,omitempty"`
	Subject      string         `json:"subject,omitempty"`
	Content      map[string]any `json:"content,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Adapter delivers messages through the hosted messaging gateway. One
// adapter instance serves every externally delivered channel; the
// gateway routes on the channel field.
type Adapter struct {
	client *Client
}

var _ provider.ChannelAdapter = (*Adapter)(nil)

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Supports(ch message.Channel) bool {
	switch ch {
	case message.ChannelEmail, message.ChannelSMS, message.ChannelWhatsApp, message.ChannelChat:
		return true
	}
	return false
}

// Send performs one gateway call and classifies the outcome. Transport
// failures and 5xx responses are retryable; 4xx responses are classified
// by the gateway error code.
func (a *Adapter) Send(ctx context.Context, m *message.OutboundMessage) provider.SendResult {
	body, err := json.Marshal(sendRequest{
		TenantID:     m.TenantID,
		Channel:      string(m.Channel),
		Recipient:    m.Recipient,
		TemplateCode: m.TemplateCode,
		Subject:      m.Subject,
		Content:      m.Content,
	})
	if err != nil {
		return provider.PermanentError("ENCODE_FAILED", err.Error())
	}

	url := a.client.cfg.BaseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return provider.PermanentError("BAD_REQUEST", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+a.client.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return provider.RetryableError(message.ErrCodeTimeout, "gateway call exceeded the adapter timeout")
		}
		return provider.RetryableError("GATEWAY_UNREACHABLE", err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out sendResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return provider.RetryableError("BAD_GATEWAY_RESPONSE", err.Error())
		}
		return provider.Ok(out.MessageID)

	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.RetryableError("GATEWAY_RATE_LIMITED", "gateway returned 429")

	case resp.StatusCode >= 500:
		return provider.RetryableError("GATEWAY_ERROR", fmt.Sprintf("gateway returned %s", resp.Status))
	}

	raw, _ := io.ReadAll(resp.Body)
	var gwErr errorResponse
	if err := json.Unmarshal(raw, &gwErr); err != nil || gwErr.Error.Code == "" {
		return provider.PermanentError("GATEWAY_REJECTED", fmt.Sprintf("gateway returned %s: %s", resp.Status, string(raw)))
	}

	if codeRetryable(gwErr.Error.Code) {
		return provider.RetryableError(gwErr.Error.Code, gwErr.Error.Message)
	}
	return provider.PermanentError(gwErr.Error.Code, gwErr.Error.Message)
}
