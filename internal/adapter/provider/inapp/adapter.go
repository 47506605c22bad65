// Package inapp delivers IN_APP messages without an external provider.
// Delivery means the message is durably recorded and visible to the
// recipient's next inbox poll, so a send succeeds as soon as the state
// machine records it.
package inapp

import (
	"context"
	"fmt"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/provider"
)

type Adapter struct{}

var _ provider.ChannelAdapter = (*Adapter)(nil)

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Supports(ch message.Channel) bool {
	return ch == message.ChannelInApp
}

func (a *Adapter) Send(_ context.Context, m *message.OutboundMessage) provider.SendResult {
	// Local delivery cannot fail transiently; the synthetic reference
	// keeps the attempt audit uniform across channels.
	return provider.Ok(fmt.Sprintf("inapp-%d", m.ID))
}
