package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	apperrors "github.com/alexjbarnes/openid-store/internal/errors"
	"github.com/alexjbarnes/openid-store/internal/models"
	"github.com/alexjbarnes/openid-store/internal/properties"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApplicationStore(t *testing.T) *ApplicationStore[models.Application, *models.Application] {
	t.Helper()
	return NewApplicationStore[models.Application](testOptions())
}

func createApplication(t *testing.T, s *ApplicationStore[models.Application, *models.Application], clientID string) *models.Application {
	t.Helper()
	app := &models.Application{ClientID: clientID, Type: models.ClientTypePublic}
	require.NoError(t, s.Create(context.Background(), app))
	return app
}

// --- Create / FindByID ---

func TestApplicationStore_CreateAndFindByID(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	app := &models.Application{
		ClientID:               "web",
		ClientSecret:           "$2a$10$hash",
		Type:                   models.ClientTypeConfidential,
		ConsentType:            models.ConsentTypeExplicit,
		DisplayName:            "Web app",
		Permissions:            []string{"ept:token", "gt:authorization_code"},
		RedirectURIs:           []string{"https://app.example.com/cb"},
		PostLogoutRedirectURIs: []string{"https://app.example.com/bye"},
		Requirements:           []string{"ft:pkce"},
		Properties:             json.RawMessage(`{"tier":"gold"}`),
	}
	require.NoError(t, s.Create(ctx, app))

	assert.Len(t, app.ApplicationID, 32)
	assert.Equal(t, int64(1), app.ID)

	got, err := s.FindByID(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, app, got)
}

func TestApplicationStore_CreateKeepsSuppliedID(t *testing.T) {
	s := newApplicationStore(t)

	app := &models.Application{ApplicationID: "fixed", ClientID: "web"}
	require.NoError(t, s.Create(context.Background(), app))
	assert.Equal(t, "fixed", app.ApplicationID)
}

func TestApplicationStore_CreateDuplicateIDFails(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &models.Application{ApplicationID: "fixed", ClientID: "one"}))

	dup := &models.Application{ApplicationID: "fixed", ClientID: "two"}
	err := s.Create(ctx, dup)
	require.ErrorIs(t, err, apperrors.ErrDuplicateKey)
	assert.Zero(t, dup.ID, "failed create must leave the entity untouched")

	got, err := s.FindByID(ctx, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "one", got.ClientID)
}

func TestApplicationStore_CreateDuplicateClientIDFails(t *testing.T) {
	s := newApplicationStore(t)
	createApplication(t, s, "Web")

	err := s.Create(context.Background(), &models.Application{ClientID: "web"})
	require.ErrorIs(t, err, apperrors.ErrDuplicateKey)
}

func TestApplicationStore_CreateNilFails(t *testing.T) {
	s := newApplicationStore(t)
	require.ErrorIs(t, s.Create(context.Background(), nil), apperrors.ErrValidation)
}

func TestApplicationStore_CreateCancelled(t *testing.T) {
	s := newApplicationStore(t)

	err := s.Create(cancelledContext(), &models.Application{ClientID: "web"})
	require.ErrorIs(t, err, context.Canceled)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplicationStore_PhysicalIDsNotReused(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	createApplication(t, s, "a")
	b := createApplication(t, s, "b")
	require.NoError(t, s.Delete(ctx, b))

	c := createApplication(t, s, "c")
	assert.Equal(t, int64(3), c.ID)
}

func TestApplicationStore_CreateRejectsPhysicalIDInUse(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	a := createApplication(t, s, "x")

	b := &models.Application{ClientID: "y", ID: a.ID}
	err := s.Create(ctx, b)
	require.ErrorIs(t, err, apperrors.ErrDuplicateKey)
	assert.Empty(t, b.ApplicationID, "failed create must leave the entity untouched")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestApplicationStore_FindByIDMissing(t *testing.T) {
	s := newApplicationStore(t)

	got, err := s.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApplicationStore_FindByIDBlank(t *testing.T) {
	s := newApplicationStore(t)

	_, err := s.FindByID(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApplicationStore_ReturnedCopiesAreIndependent(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	app := &models.Application{ClientID: "web", Permissions: []string{"ept:token"}}
	require.NoError(t, s.Create(ctx, app))

	// Mutating the caller's value after Create must not reach the store.
	app.Permissions[0] = "changed"

	got, err := s.FindByID(ctx, app.ApplicationID)
	require.NoError(t, err)
	got.Permissions[0] = "also changed"
	got.DisplayName = "changed"

	again, err := s.FindByID(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ept:token"}, again.Permissions)
	assert.Empty(t, again.DisplayName)
}

// --- Update / Delete ---

func TestApplicationStore_Update(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	app := createApplication(t, s, "web")
	app.DisplayName = "Renamed"
	require.NoError(t, s.Update(ctx, app))

	got, err := s.FindByID(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.DisplayName)
}

func TestApplicationStore_UpdateInsertsWithPhysicalID(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	a := &models.Application{ApplicationID: "a", ClientID: "ca"}
	b := &models.Application{ApplicationID: "b", ClientID: "cb"}
	require.NoError(t, s.Update(ctx, a))
	require.NoError(t, s.Update(ctx, b))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)

	// Replacing keeps the stored physical id whatever the caller sends.
	a.ID = 0
	a.DisplayName = "Renamed"
	require.NoError(t, s.Update(ctx, a))
	assert.Equal(t, int64(1), a.ID)

	got, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	c := createApplication(t, s, "cc")
	assert.Equal(t, int64(3), c.ID)
}

func TestApplicationStore_UpdateClientIDConflict(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	createApplication(t, s, "one")
	two := createApplication(t, s, "two")

	two.ClientID = "ONE"
	require.ErrorIs(t, s.Update(ctx, two), apperrors.ErrDuplicateKey)

	got, err := s.FindByID(ctx, two.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, "two", got.ClientID)
}

func TestApplicationStore_UpdateBlankIDFails(t *testing.T) {
	s := newApplicationStore(t)
	err := s.Update(context.Background(), &models.Application{ClientID: "web"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApplicationStore_DeleteIdempotent(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	app := createApplication(t, s, "web")
	require.NoError(t, s.Delete(ctx, app))
	require.NoError(t, s.Delete(ctx, app))

	got, err := s.FindByID(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApplicationStore_DeleteNilFails(t *testing.T) {
	s := newApplicationStore(t)
	require.ErrorIs(t, s.Delete(context.Background(), nil), apperrors.ErrValidation)
}

// --- Lookups ---

func TestApplicationStore_FindByClientIDIgnoresCase(t *testing.T) {
	s := newApplicationStore(t)
	app := createApplication(t, s, "Foo")

	got, err := s.FindByClientID(context.Background(), "foo")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, app.ApplicationID, got.ApplicationID)

	got, err = s.FindByClientID(context.Background(), "bar")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApplicationStore_FindByClientIDBlank(t *testing.T) {
	s := newApplicationStore(t)
	_, err := s.FindByClientID(context.Background(), " ")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApplicationStore_FindByRedirectURI(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &models.Application{ClientID: "a", RedirectURIs: []string{"https://a/cb", "https://shared/cb"}}))
	require.NoError(t, s.Create(ctx, &models.Application{ClientID: "b", RedirectURIs: []string{"https://shared/cb"}}))
	require.NoError(t, s.Create(ctx, &models.Application{ClientID: "c", PostLogoutRedirectURIs: []string{"https://shared/cb"}}))

	seq, err := s.FindByRedirectURI(ctx, "https://shared/cb")
	got := collect(t, seq, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ClientID)
	assert.Equal(t, "b", got[1].ClientID)

	seq, err = s.FindByPostLogoutRedirectURI(ctx, "https://shared/cb")
	got = collect(t, seq, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ClientID)

	_, err = s.FindByRedirectURI(ctx, "")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApplicationStore_List(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C", "D"} {
		createApplication(t, s, id)
	}

	tests := []struct {
		name          string
		count, offset int
		want          []string
	}{
		{name: "page", count: 2, offset: 1, want: []string{"B", "C"}},
		{name: "no limit", count: 0, offset: 0, want: []string{"A", "B", "C", "D"}},
		{name: "past end", count: 2, offset: 3, want: []string{"D"}},
		{name: "offset beyond", count: 2, offset: 10, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := s.List(ctx, tt.count, tt.offset)
			got := collect(t, seq, err)

			var ids []string
			for _, app := range got {
				ids = append(ids, app.ClientID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestApplicationStore_ListNegativeFails(t *testing.T) {
	s := newApplicationStore(t)

	_, err := s.List(context.Background(), -1, 0)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = s.List(context.Background(), 0, -1)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApplicationStore_QueryNotSupported(t *testing.T) {
	s := newApplicationStore(t)

	_, err := s.Query(context.Background(), "anything")
	require.ErrorIs(t, err, apperrors.ErrNotSupported)
}

func TestApplicationStore_Instantiate(t *testing.T) {
	s := newApplicationStore(t)

	app, err := s.Instantiate(context.Background())
	require.NoError(t, err)
	assert.Len(t, app.ApplicationID, 32)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "instantiated entities are not stored")
}

// --- Accessors ---

func TestApplicationStore_Accessors(t *testing.T) {
	s := newApplicationStore(t)
	app := &models.Application{}

	require.NoError(t, s.SetClientID(app, "web"))
	require.NoError(t, s.SetClientSecret(app, "secret"))
	require.NoError(t, s.SetClientType(app, models.ClientTypePublic))
	require.NoError(t, s.SetConsentType(app, models.ConsentTypeImplicit))
	require.NoError(t, s.SetDisplayName(app, "Web"))
	require.NoError(t, s.SetPermissions(app, []string{"p1", "p2", "p1"}))
	require.NoError(t, s.SetRedirectURIs(app, []string{"https://cb"}))

	clientID, err := s.GetClientID(app)
	require.NoError(t, err)
	assert.Equal(t, "web", clientID)

	secret, err := s.GetClientSecret(app)
	require.NoError(t, err)
	assert.Equal(t, "secret", secret)

	consent, err := s.GetConsentType(app)
	require.NoError(t, err)
	assert.Equal(t, models.ConsentTypeImplicit, consent)

	perms, err := s.GetPermissions(app)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, perms)

	// The getter hands out a copy.
	perms[0] = "changed"
	perms, err = s.GetPermissions(app)
	require.NoError(t, err)
	assert.Equal(t, "p1", perms[0])

	uris, err := s.GetRedirectURIs(app)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cb"}, uris)
}

func TestApplicationStore_AccessorsNilEntity(t *testing.T) {
	s := newApplicationStore(t)

	_, err := s.GetClientID(nil)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.ErrorIs(t, s.SetDisplayName(nil, "x"), apperrors.ErrValidation)
	_, err = s.GetProperties(nil)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApplicationStore_Properties(t *testing.T) {
	s := newApplicationStore(t)
	app := &models.Application{}

	props, err := s.GetProperties(app)
	require.NoError(t, err)
	assert.Empty(t, props)

	props = properties.Properties{}
	require.NoError(t, props.Set("tier", "gold"))
	require.NoError(t, s.SetProperties(app, props))
	assert.JSONEq(t, `{"tier":"gold"}`, string(app.Properties))

	got, err := s.GetProperties(app)
	require.NoError(t, err)
	assert.Equal(t, "gold", got.Lookup("tier", "").String())

	require.NoError(t, s.SetProperties(app, nil))
	assert.Nil(t, app.Properties)
}

// --- Concurrency ---

func TestApplicationStore_ConcurrentAccess(t *testing.T) {
	s := newApplicationStore(t)
	ctx := context.Background()

	const workers = 16

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				app := &models.Application{ClientID: fmt.Sprintf("client-%d-%d", w, i)}
				if !assert.NoError(t, s.Create(ctx, app)) {
					return
				}

				got, err := s.FindByClientID(ctx, app.ClientID)
				assert.NoError(t, err)
				assert.NotNil(t, got)

				if i%5 == 0 {
					assert.NoError(t, s.Delete(ctx, app))
				}
			}
		}()
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*20), n)

	seq, err := s.List(ctx, 0, 0)
	apps := collect(t, seq, err)
	seen := make(map[int64]struct{}, len(apps))
	for _, app := range apps {
		_, dup := seen[app.ID]
		require.False(t, dup, "physical id %d assigned twice", app.ID)
		seen[app.ID] = struct{}{}
	}
}
