package gcsuploader

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MockObjectStore keeps objects in a map keyed by "bucket/object".
type MockObjectStore struct {
	objects map[string][]byte
	PutFunc func(ctx context.Context, bucket, object string, data []byte, contentType string) error
}

func newMockObjectStore() *MockObjectStore {
	return &MockObjectStore{objects: make(map[string][]byte)}
}

func (m *MockObjectStore) Put(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, bucket, object, data, contentType)
	}
	m.objects[bucket+"/"+object] = append([]byte(nil), data...)
	return nil
}

func (m *MockObjectStore) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	data, ok := m.objects[bucket+"/"+object]
	if !ok {
		return nil, errors.New("storage: object doesn't exist")
	}
	return data, nil
}

func (m *MockObjectStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	for key := range m.objects {
		name := strings.TrimPrefix(key, bucket+"/")
		if name != key && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *MockObjectStore) Close() error { return nil }

func rows() []domain.Transaction {
	return []domain.Transaction{
		{ID: 1, Type: domain.TypeExpense, Amount: decimal.RequireFromString("-45"), Note: "Lunch", Category: "Food", Date: "2023-10-01"},
		{ID: 2, Type: domain.TypePay, Amount: decimal.RequireFromString("1500"), Note: "Paycheck", Category: "Salary", Date: "2023-10-15"},
	}
}

func TestBackupMirrorAndRestore(t *testing.T) {
	store := newMockObjectStore()
	b := NewBackup(store, "my-bucket", "/backups/", zerolog.Nop())
	b.now = func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) }

	uri, err := b.Mirror(context.Background(), rows())
	if err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}
	if uri != "gs://my-bucket/backups/ledger-20240315T093000Z.csv" {
		t.Errorf("uri = %s", uri)
	}
	data := string(store.objects["my-bucket/backups/ledger-20240315T093000Z.csv"])
	if !strings.HasPrefix(data, "id,type,amount,note,category,date\n1,expense,-45.00,Lunch,Food,2023-10-01\n") {
		t.Errorf("uploaded csv = %q", data)
	}

	got, from, err := b.Restore(context.Background(), uri)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if from != uri || len(got) != 2 || got[1].Note != "Paycheck" || got[1].Amount.StringFixed(2) != "1500.00" {
		t.Errorf("restored %v from %s", got, from)
	}
}

func TestBackupLatest(t *testing.T) {
	store := newMockObjectStore()
	b := NewBackup(store, "bkt", "ledger", zerolog.Nop())

	for _, ts := range []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	} {
		ts := ts
		b.now = func() time.Time { return ts }
		if _, err := b.Mirror(context.Background(), rows()); err != nil {
			t.Fatal(err)
		}
	}
	store.objects["bkt/ledger/notes.txt"] = []byte("ignore me")

	latest, err := b.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if latest != "gs://bkt/ledger/ledger-20240501T000000Z.csv" {
		t.Errorf("Latest = %s", latest)
	}

	if _, from, err := b.Restore(context.Background(), "latest"); err != nil || from != latest {
		t.Errorf("Restore(latest) = %s, %v", from, err)
	}
}

func TestBackupErrors(t *testing.T) {
	store := newMockObjectStore()
	b := NewBackup(store, "bkt", "", zerolog.Nop())
	ctx := context.Background()

	if _, err := b.Mirror(ctx, nil); !errors.Is(err, domain.ErrEmptyStore) {
		t.Errorf("expected ErrEmptyStore, got %v", err)
	}
	if _, err := b.Latest(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := b.Restore(ctx, "s3://bkt/x.csv"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	store.PutFunc = func(context.Context, string, string, []byte, string) error {
		return errors.New("permission denied")
	}
	if _, err := b.Mirror(ctx, rows()); err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("expected upload error, got %v", err)
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://bkt/a/b.csv", "bkt", "a/b.csv", false},
		{"gs://bkt", "", "", true},
		{"gs:///x.csv", "", "", true},
		{"https://bkt/x.csv", "", "", true},
	}
	for _, tt := range tests {
		bucket, object, err := ParseURI(tt.uri)
		if (err != nil) != tt.wantErr || bucket != tt.bucket || object != tt.object {
			t.Errorf("ParseURI(%q) = %q, %q, %v", tt.uri, bucket, object, err)
		}
	}
	if got := ExtractFilenameFromGCSURI("gs://bkt/a/b.csv"); got != "b.csv" {
		t.Errorf("ExtractFilenameFromGCSURI = %s", got)
	}
}
