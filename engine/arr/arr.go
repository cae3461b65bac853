package arr

import (
	"context"
	"errors"
)

// Kind identifies which catalog service an item belongs to.
type Kind string

const (
	KindRadarr Kind = "radarr"
	KindSonarr Kind = "sonarr"
)

// MediaItem is a read-only snapshot of a catalog item, taken fresh every run.
// The catalog service stays the source of truth for all of these fields.
type MediaItem struct {
	Kind           Kind
	ID             int32
	Title          string
	Year           int32
	Path           string
	RootFolderPath string
	TmdbID         int32
	ImdbID         string
	TvdbID         int32
	Monitored      bool
	HasFile        bool
}

// RenameJob is the handle returned by a rename request, used to poll the
// service until the move has been applied.
type RenameJob struct {
	ItemID     int32
	TargetPath string
}

// RenameState is the observed state of an in-flight rename.
type RenameState string

const (
	RenameStatePending   RenameState = "pending"
	RenameStateSucceeded RenameState = "succeeded"
	RenameStateFailed    RenameState = "failed"
)

var (
	// ErrUnauthorized is returned when the service rejects the API key.
	// Listing failures with this error abort the whole run for that service.
	ErrUnauthorized = errors.New("service rejected the API key")
	// ErrRenameRejected is returned when the service refuses a rename request,
	// e.g. because the target path collides with another item.
	ErrRenameRejected = errors.New("rename request rejected")
)

// Renamer is the capability contract shared by the Radarr and Sonarr adapters.
// Both services move folders out-of-band after a path update, so a rename is a
// request plus a poll loop, never a synchronous operation.
type Renamer interface {
	// Kind returns the service kind, used as part of the rename record key.
	Kind() Kind

	// ListItems returns all items that have files on disk, in the order the
	// service returns them.
	ListItems(ctx context.Context) ([]MediaItem, error)

	// GetItem returns a fresh snapshot of a single item.
	GetItem(ctx context.Context, id int32) (MediaItem, error)

	// FolderFormat returns the folder naming template for this service.
	FolderFormat(ctx context.Context) (string, error)

	// RequestRename asks the service to move the item's folder to targetPath.
	RequestRename(ctx context.Context, item MediaItem, targetPath string) (RenameJob, error)

	// PollRename reports whether the service has applied the move yet.
	PollRename(ctx context.Context, job RenameJob) (RenameState, error)

	// RefreshItem asks the service to re-scan the item's folder so its file
	// flags reflect the new location.
	RefreshItem(ctx context.Context, item MediaItem) error
}
