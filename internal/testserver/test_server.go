// Package testserver wires the full service stack over an in-memory
// store for transport and integration tests.
package testserver

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/messaging"
	"github.com/theo-nash/claude-slack/internal/domain/reconcile"
	"github.com/theo-nash/claude-slack/internal/sqlite"
	"github.com/theo-nash/claude-slack/internal/transport"
)

// TestServer is a writer service over an in-memory database.
type TestServer struct {
	Server     *httptest.Server
	DB         *sqlite.DB
	Identity   *identity.Service
	Membership *membership.Service
	Messaging  *messaging.Service
	Reconciler *reconcile.Service
}

// New starts a test writer service. The server and database are torn
// down with the test.
func New(t *testing.T) *TestServer {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })

	identitySvc := identity.NewService(
		sqlite.NewProjectRepository(db),
		sqlite.NewAgentRepository(db),
		sqlite.NewSessionRepository(db),
		nil,
	)
	membershipSvc := membership.NewService(
		sqlite.NewChannelRepository(db),
		sqlite.NewMemberRepository(db),
		identitySvc,
		nil,
	)
	messagingSvc := messaging.NewService(
		sqlite.NewMessageRepository(db),
		membershipSvc,
		nil,
		messaging.Settings{MaxMessageLength: 4000, MessageRetentionDays: 30},
		nil,
	)
	store := sqlite.NewReconcileStore(db)
	reconciler := reconcile.NewService(store, store, nil)

	router := transport.NewServer(transport.Services{
		Identity:   identitySvc,
		Membership: membershipSvc,
		Messaging:  messagingSvc,
	}, nil)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestServer{
		Server:     server,
		DB:         db,
		Identity:   identitySvc,
		Membership: membershipSvc,
		Messaging:  messagingSvc,
		Reconciler: reconciler,
	}
}
