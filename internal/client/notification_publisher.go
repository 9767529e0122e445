package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/playbook-media/be-cms-governance/internal/natsclient"
)

// NotificationPublisher publishes governance transition events to NATS
// JetStream for consumption by the notifications service and queue UIs.
//
// Subject convention: notifications.cms.<event_type>
// Event types: review_requested, item_escalated, changes_requested,
//              item_cleared, decision_recorded, asset_decision_recorded
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never interrupt
// governance operations.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	Vertical     string                 `json:"vertical"`
	ActorID      string                 `json:"actor_id"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// client. A nil client disables publishing.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// PublishItemEvent publishes a content governance event to NATS.
// Subject: notifications.cms.<eventType>
func (p *NotificationPublisher) PublishItemEvent(ctx context.Context, eventType, itemID, vertical, actorID string, payload map[string]interface{}) {
	if p.nats == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		Vertical:     vertical,
		ActorID:      actorID,
		ResourceType: "content_item",
		ResourceID:   itemID,
		Severity:     "info",
		Category:     "cms_governance",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.cms.%s", eventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("item_id", itemID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("item_id", itemID).
		Msg("notification: event published")
}
