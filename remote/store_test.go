package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/gateway"
	"github.com/goliatone/go-artisan/remote"
	"github.com/goliatone/go-artisan/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	client *gateway.Client
	store  *remote.Store
	auth   *remote.AuthAPI
	clock  *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	hash, err := server.HashPasswordCost("s3cret-pass", bcrypt.MinCost)
	require.NoError(t, err)

	clk := &clock{now: time.Now()}
	tokens := server.NewTokenService([]byte("remote-secret"),
		server.WithTokenClock(clk.Now),
		server.WithTokenTTL(time.Minute, time.Hour),
	)
	srv := server.New(
		artisan.NewDemoStore(artisan.WithMemoryLogger(artisan.NopLogger{})),
		tokens,
		server.WithAccounts(server.NewMemoryAccounts(server.Account{
			ID:           "admin-1",
			Email:        "admin@example.com",
			PasswordHash: hash,
		})),
	)

	ts := httptest.NewServer(adaptor.FiberApp(srv.App()))
	t.Cleanup(ts.Close)

	client := gateway.NewClient(ts.URL, gateway.WithHTTPClient(ts.Client()))
	return &harness{
		client: client,
		store:  remote.NewStore(client),
		auth:   remote.NewAuthAPI(client),
		clock:  clk,
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	pair, err := h.auth.Login(context.Background(), "admin@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestAuthAPILoginAndMe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Login(ctx, "admin@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrUnauthorized))

	h.login(t)

	profile, err := h.auth.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", profile.ID)

	require.NoError(t, h.auth.Logout(ctx))
	_, err = h.auth.Me(ctx)
	assert.True(t, errors.Is(err, gateway.ErrAuthExpired))
}

func TestStoreFetchAndList(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	record, err := h.store.FetchArtisan(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Moon", record.Name)
	assert.Equal(t, artisan.IDStatusVerified, record.KYC.IDStatus)

	page, err := h.store.ListArtisans(ctx, artisan.ListFilter{Status: artisan.StatusBlocked})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "3", page.Items[0].ID)

	_, err = h.store.FetchArtisan(ctx, "404")
	assert.ErrorIs(t, err, artisan.ErrNotFound)
}

func TestStoreMapsPreconditionFailures(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, err := h.store.ApproveArtisan(context.Background(), "2")
	assert.ErrorIs(t, err, artisan.ErrPreconditionFailed)

	_, err = h.store.BlockArtisan(context.Background(), "3")
	assert.ErrorIs(t, err, artisan.ErrPreconditionFailed)
}

func TestStoreRenewsExpiredAccessToken(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	before, err := h.client.Credentials().Get(ctx, gateway.DefaultKeys.Access)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)

	record, err := h.store.FetchArtisan(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", record.ID)

	after, err := h.client.Credentials().Get(ctx, gateway.DefaultKeys.Access)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestStoreExpiredSessionRequiresLogin(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	h.clock.Advance(2 * time.Hour)

	_, err := h.store.FetchArtisan(ctx, "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrAuthExpired))

	refresh, err := h.client.Credentials().Get(ctx, gateway.DefaultKeys.Refresh)
	require.NoError(t, err)
	assert.Empty(t, refresh)
}

func TestWorkflowOverRemoteStore(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	broker := artisan.NewBroker()
	sub := broker.Subscribe(4)
	defer sub.Unsubscribe()

	wf := artisan.NewWorkflow(h.store, "2", artisan.WithPublisher(broker), artisan.WithWorkflowLogger(artisan.NopLogger{}))
	require.NoError(t, wf.Load(ctx))

	_, err := wf.Approve(ctx)
	assert.ErrorIs(t, err, artisan.ErrPreconditionFailed)

	result, err := wf.VerifyID(ctx, artisan.ForceSuccess)
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusVerified, result.IDStatus())

	result, err = wf.Approve(ctx)
	require.NoError(t, err)
	assert.True(t, result.Current.IsActive())

	first := <-sub.C()
	second := <-sub.C()
	assert.Equal(t, "2", first.ID)
	assert.Equal(t, artisan.StatusActive, second.Status)
}

func TestTranslateFallsBackToStatusCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	store := remote.NewStore(gateway.NewClient(ts.URL, gateway.WithHTTPClient(ts.Client())))

	_, err := store.FetchArtisan(context.Background(), "1")
	assert.ErrorIs(t, err, artisan.ErrNotFound)

	var statusErr *gateway.StatusError
	assert.True(t, errors.As(err, &statusErr))
}

func TestStoreWithPrefix(t *testing.T) {
	paths := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","name":"Jane Moon","status":"active"}`))
	}))
	defer ts.Close()

	client := gateway.NewClient(ts.URL, gateway.WithHTTPClient(ts.Client()))
	store := remote.NewStore(client, remote.WithPrefix("/v2/artisans"), remote.WithPrefix(""))

	record, err := store.FetchArtisan(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "/v2/artisans/1", <-paths)
	assert.Equal(t, "Jane Moon", record.Name)
	assert.Equal(t, artisan.StatusActive, record.Status)
}
