package port

import "github.com/dreschagin/views-collector/internal/domain/service"

// SnapshotEncoder renders a finalized snapshot into bytes for storage.
type SnapshotEncoder interface {
	Encode(snapshot *service.Snapshot) ([]byte, error)
	ContentType() string
	ContentDisposition() string
	// Extension is appended to the partition key, e.g. ".csv".
	Extension() string
}
