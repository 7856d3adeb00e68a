package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newResolver() (*Resolver, *memory.Store, *test.Hook) {
	logger, hook := test.NewNullLogger()
	store := memory.NewStore()
	return NewResolver(store.Identities(), logger, WithHashCost(bcrypt.MinCost)), store, hook
}

func TestResolve_CreatesGuestOnce(t *testing.T) {
	r, _, hook := newResolver()
	ctx := context.Background()

	first, err := r.Resolve(ctx, nil, "  A@B.com ")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", first.Email)
	assert.Equal(t, "a", first.FirstName)
	assert.Equal(t, domain.GuestLastName, first.LastName)
	assert.True(t, first.IsGuest())
	assert.Equal(t, domain.RoleCustomer, first.Role)
	assert.NotEmpty(t, first.PasswordHash)

	second, err := r.Resolve(ctx, nil, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, hook.AllEntries(), 1)
}

func TestResolve_ConcurrentSameEmail(t *testing.T) {
	r, _, _ := newResolver()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[uuid.UUID]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, err := r.Resolve(context.Background(), nil, "race@example.com")
			if assert.NoError(t, err) {
				mu.Lock()
				ids[identity.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 1)
}

func TestResolve_KnownID(t *testing.T) {
	r, store, _ := newResolver()
	ctx := context.Background()

	stored, _, err := store.Identities().CreateIfAbsent(ctx, &domain.Identity{Email: "user@example.com", FirstName: "User", LastName: "One", Role: domain.RoleCustomer})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, &stored.ID, "ignored@example.com")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	assert.False(t, got.IsGuest())
}

func TestResolve_Errors(t *testing.T) {
	r, _, _ := newResolver()
	missing := uuid.New()

	testCases := []struct {
		name  string
		id    *uuid.UUID
		email string
		kind  apperr.Kind
	}{
		{name: "unknown id", id: &missing, email: "a@b.com", kind: apperr.NotFound},
		{name: "empty email", email: "  ", kind: apperr.Invalid},
		{name: "malformed email", email: "nobody", kind: apperr.Invalid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tc.id, tc.email)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}
