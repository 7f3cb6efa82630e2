package controller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/unifi-declarative/unifid/pkg/util"
)

// SnapshotHandle identifies a controller backup taken before a live
// apply. The backup contents stay on the controller; the engine only
// needs proof one exists.
type SnapshotHandle struct {
	ID      string    `json:"id"`
	Bytes   int64     `json:"bytes"`
	TakenAt time.Time `json:"taken_at"`
}

// Snapshot asks the controller to export a backup. A failed snapshot is
// fatal to the run: the applier must not mutate anything without one.
func (c *HTTPClient) Snapshot(ctx context.Context) (*SnapshotHandle, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrSnapshotFailed, err)
	}

	payload := map[string]string{"cmd": "backup"}
	status, err := c.doOnce(ctx, "snapshot", http.MethodPost, c.sitePath("cmd/backup"), payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrSnapshotFailed, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %v", util.ErrSnapshotFailed, c.statusError("snapshot", status, "cmd/backup"))
	}

	handle := &SnapshotHandle{
		ID:      uuid.NewString(),
		TakenAt: time.Now(),
	}
	util.WithOperation("snapshot").Infof("controller backup taken, handle %s", handle.ID)
	return handle, nil
}
