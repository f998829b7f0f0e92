package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
)

// Firestore checks need the emulator:
//
//	gcloud emulators firestore start --host-port=localhost:8085
//	FIRESTORE_EMULATOR_HOST=localhost:8085 go test ./internal/repository/
func newFirestoreTestRepo(t *testing.T) DocumentRepository {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := NewFirestoreClient(context.Background(), "docprocessor-test")
	if err != nil {
		t.Fatalf("NewFirestoreClient() error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewFirestoreRepository(client, "documents_"+uuid.NewString(), slog.New(slog.DiscardHandler))
}

func TestFirestoreConditionalUpdates(t *testing.T) {
	for _, c := range conditionalUpdateChecks {
		t.Run(c.name, func(t *testing.T) {
			c.run(t, newFirestoreTestRepo(t))
		})
	}
}

func TestFirestoreGetByContentHash(t *testing.T) {
	repo := newFirestoreTestRepo(t)
	doc := createDoc(t, repo, "hashed.txt")

	got, err := repo.GetByContentHash(context.Background(), "hash-hashed.txt")
	if err != nil {
		t.Fatalf("GetByContentHash() error: %v", err)
	}
	if got.ID != doc.ID {
		t.Fatalf("GetByContentHash() id = %s, want %s", got.ID, doc.ID)
	}
}
