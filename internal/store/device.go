package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DeviceID returns the persisted device identity, generating and storing a
// random UUID on first use. It doubles as the broker client id.
func DeviceID(ctx context.Context, kv KV) (string, error) {
	id, err := kv.Get(ctx, KeyDeviceID)
	if err != nil {
		return "", fmt.Errorf("reading device id: %w", err)
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := kv.Set(ctx, KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("saving device id: %w", err)
	}
	return id, nil
}
