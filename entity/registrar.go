package entity

import (
	"context"
	"encoding/json"
	"fmt"
)

// Register publishes the retained discovery config of e so Home Assistant
// recovers the entity definition across restarts.
func Register(ctx context.Context, client Client, e Entity) error {
	payload, err := json.Marshal(e.Discovery())
	if err != nil {
		return fmt.Errorf("entity %s: marshal discovery: %w", e.UniqueID(), err)
	}
	if err := client.Publish(ctx, e.DiscoveryTopic(), payload, true); err != nil {
		return fmt.Errorf("entity %s: publish discovery: %w", e.UniqueID(), err)
	}
	return nil
}

// Unregister publishes an empty retained payload to the discovery topic,
// which Home Assistant treats as removal.
func Unregister(ctx context.Context, client Client, e Entity) error {
	if err := client.Publish(ctx, e.DiscoveryTopic(), []byte{}, true); err != nil {
		return fmt.Errorf("entity %s: publish removal: %w", e.UniqueID(), err)
	}
	return nil
}
