package checkpoint

import (
	"context"
)

// Store persists checkpoints for crash recovery. Save is called after every
// checkpoint mutation, so implementations must be cheap and atomic.
type Store interface {
	// Save durably writes the checkpoint
	Save(ctx context.Context, cp *Checkpoint) error

	// Load reads the checkpoint for taskID; found is false when none exists
	Load(ctx context.Context, taskID string) (cp *Checkpoint, found bool, err error)

	// Delete removes the checkpoint for taskID; deleting an absent
	// checkpoint is not an error
	Delete(ctx context.Context, taskID string) error
}
