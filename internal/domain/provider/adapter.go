package provider

import (
	"context"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// SendResult is the normalized outcome of one provider call: success with
// a reference, or a classified failure. Pre-flight policy rejections never
// reach this type; they are handled before the adapter is invoked.
type SendResult struct {
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
	Retryable         bool
}

// Success reports whether the provider accepted the message.
func (r SendResult) Success() bool {
	return r.ErrorCode == "" && r.ProviderMessageID != ""
}

// Ok builds a success result.
func Ok(providerMessageID string) SendResult {
	return SendResult{ProviderMessageID: providerMessageID}
}

// RetryableError builds a transient failure (timeout, 5xx, provider-side
// rate limit).
func RetryableError(code, msg string) SendResult {
	return SendResult{ErrorCode: code, ErrorMessage: msg, Retryable: true}
}

// PermanentError builds a terminal failure (bad recipient, permanent auth
// rejection, window expired at the provider).
func PermanentError(code, msg string) SendResult {
	return SendResult{ErrorCode: code, ErrorMessage: msg, Retryable: false}
}

// ChannelAdapter sends one message to one external provider. A cancelled
// or timed-out call must resolve to a retryable result, never be left
// ambiguous.
type ChannelAdapter interface {
	// Supports reports whether this adapter handles the channel.
	Supports(channel message.Channel) bool

	// Send performs exactly one provider call for the message.
	Send(ctx context.Context, m *message.OutboundMessage) SendResult
}
