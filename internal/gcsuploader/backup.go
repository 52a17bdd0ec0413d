// Package gcsuploader keeps timestamped copies of the ledger's backing file in
// Google Cloud Storage and restores them.
package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/rs/zerolog"
)

const (
	snapshotPrefix = "ledger-"
	snapshotLayout = "20060102T150405Z"
	contentTypeCSV = "text/csv"
)

// Backup writes and reads ledger snapshots under gs://bucket/prefix/.
type Backup struct {
	store  ObjectStore
	bucket string
	prefix string
	now    func() time.Time
	log    zerolog.Logger
}

// NewBackup creates a backup over store.
func NewBackup(store ObjectStore, bucket, prefix string, log zerolog.Logger) *Backup {
	return &Backup{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		log:    log,
	}
}

// Mirror uploads rows in backing-file form and returns the object URI.
func (b *Backup) Mirror(ctx context.Context, rows []domain.Transaction) (string, error) {
	if len(rows) == 0 {
		return "", domain.E(domain.KindEmptyStore, "Backup", "no data to back up")
	}

	var buf bytes.Buffer
	if err := ledger.Encode(&buf, rows); err != nil {
		return "", fmt.Errorf("Backup: %w", err)
	}

	object := b.objectName(b.now())
	if err := b.store.Put(ctx, b.bucket, object, buf.Bytes(), contentTypeCSV); err != nil {
		return "", fmt.Errorf("Backup: upload %s: %w", object, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", b.bucket, object)
	b.log.Info().Str("gcs_uri", uri).Int("rows", len(rows)).Int("bytes", buf.Len()).Msg("Ledger snapshot uploaded")
	return uri, nil
}

// Latest returns the URI of the newest snapshot.
func (b *Backup) Latest(ctx context.Context) (string, error) {
	names, err := b.store.List(ctx, b.bucket, b.listPrefix())
	if err != nil {
		return "", fmt.Errorf("Latest: %w", err)
	}

	var snapshots []string
	for _, n := range names {
		base := path.Base(n)
		if strings.HasPrefix(base, snapshotPrefix) && strings.HasSuffix(base, ".csv") {
			snapshots = append(snapshots, n)
		}
	}
	if len(snapshots) == 0 {
		return "", domain.E(domain.KindNotFound, "Latest", "no snapshots under gs://%s/%s", b.bucket, b.listPrefix())
	}

	// The timestamp layout sorts lexically.
	sort.Strings(snapshots)
	return fmt.Sprintf("gs://%s/%s", b.bucket, snapshots[len(snapshots)-1]), nil
}

// Restore downloads and decodes a snapshot. uri may be "latest".
func (b *Backup) Restore(ctx context.Context, uri string) ([]domain.Transaction, string, error) {
	if uri == "" || uri == "latest" {
		latest, err := b.Latest(ctx)
		if err != nil {
			return nil, "", err
		}
		uri = latest
	}

	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, "", domain.Wrap(domain.KindValidation, "Restore", err)
	}

	data, err := b.store.Get(ctx, bucket, object)
	if err != nil {
		return nil, "", fmt.Errorf("Restore: %w", err)
	}

	rows, err := ledger.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	b.log.Info().Str("gcs_uri", uri).Str("file", ExtractFilenameFromGCSURI(uri)).Int("rows", len(rows)).Msg("Ledger snapshot downloaded")
	return rows, uri, nil
}

func (b *Backup) listPrefix() string {
	if b.prefix == "" {
		return snapshotPrefix
	}
	return b.prefix + "/" + snapshotPrefix
}

func (b *Backup) objectName(t time.Time) string {
	name := snapshotPrefix + t.UTC().Format(snapshotLayout) + ".csv"
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}
