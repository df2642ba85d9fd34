package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	authservice "github.com/Matidza/Auth-Service"
	"github.com/Matidza/Auth-Service/stores/storetest"
)

// testDatabase connects to MONGO_TEST_URI and returns a throwaway database.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, uri, 5*time.Second)
	require.NoError(t, err)

	db := client.Database(fmt.Sprintf("auth_service_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestAccountStore(t *testing.T) {
	db := testDatabase(t)
	store, err := NewAccountStore(context.Background(), db, nil)
	require.NoError(t, err)
	storetest.RunAccountStoreTests(t, store)
}

func TestPostStore(t *testing.T) {
	db := testDatabase(t)
	store, err := NewPostStore(context.Background(), db)
	require.NoError(t, err)
	storetest.RunPostStoreTests(t, store)
}

func TestCodeDocumentRoundTrip(t *testing.T) {
	issued := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	cleared := toCodeDocument(authservice.CodeState{})
	assert.Nil(t, cleared.IssuedAt)
	assert.False(t, cleared.toState().Issued())

	doc := toCodeDocument(authservice.CodeState{Digest: "abc", IssuedAt: issued})
	state := doc.toState()
	assert.Equal(t, "abc", state.Digest)
	assert.True(t, state.IssuedAt.Equal(issued))
}

func TestInvalidIDsAreNotFound(t *testing.T) {
	_, err := toAccountDocument(&authservice.Account{ID: "not-hex"})
	assert.Error(t, err)
}
