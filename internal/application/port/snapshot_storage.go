package port

import "context"

// SnapshotObject is one encoded snapshot ready for upload.
type SnapshotObject struct {
	Key                string
	ContentType        string
	ContentDisposition string
	Body               []byte
}

// SnapshotStorage определяет интерфейс объектного хранилища снапшотов.
type SnapshotStorage interface {
	// PutObject overwrites the object at Key and returns its location,
	// e.g. s3://bucket/key.
	PutObject(ctx context.Context, object SnapshotObject) (string, error)
}
