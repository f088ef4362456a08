package notifyapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/notify-gov/admin-portal/cache"
	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/internal/requestctx"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/services"
	"github.com/notify-gov/admin-portal/token"
	"github.com/notify-gov/admin-portal/users"
)

const (
	testClientID    = "notify-admin"
	testSecret      = "shared-admin-secret"
	testRouteSecret = "proxy-secret-1"
)

type fixture struct {
	client *notifyapi.Client
	mr     *miniredis.Miniredis
	hits   *int32
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	var hits int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(backend.Close)

	mr := miniredis.RunT(t)
	kv := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), true)

	return &fixture{
		client: notifyapi.New(backend.URL, testClientID, testSecret, testRouteSecret, kv),
		mr:     mr,
		hits:   &hits,
	}
}

func (f *fixture) backendHits() int {
	return int(atomic.LoadInt32(f.hits))
}

func signedInCtx(user *users.User) context.Context {
	return requestctx.WithIdentity(context.Background(), &requestctx.Identity{User: user})
}

func dataJSON(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
}

func TestRequestHeaders(t *testing.T) {
	var captured http.Header
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		dataJSON(t, w, users.User{ID: "u1"})
	})

	ctx := requestctx.WithTrace(context.Background(), requestctx.Trace{
		TraceID: "trace-abc",
		SpanID:  "span-def",
	})
	_, err := f.client.GetUser(ctx, "u1")
	require.NoError(t, err)

	t.Run("bearer token verifies against the shared secret", func(t *testing.T) {
		auth := captured.Get("Authorization")
		require.True(t, len(auth) > 7 && auth[:7] == "Bearer ")
		issuer, err := token.VerifyAdminJWT(auth[7:], testSecret, time.Minute)
		require.NoError(t, err)
		require.Equal(t, testClientID, issuer)
	})

	t.Run("identifying and proxy headers", func(t *testing.T) {
		require.Equal(t, "NOTIFY-ADMIN-GO-CLIENT/1.0", captured.Get("User-Agent"))
		require.Equal(t, testRouteSecret, captured.Get("X-Custom-Forwarder"))
	})

	t.Run("trace ids propagate from context", func(t *testing.T) {
		require.Equal(t, "trace-abc", captured.Get("X-B3-TraceId"))
		require.Equal(t, "span-def", captured.Get("X-B3-SpanId"))
	})
}

func TestAPIErrorMapping(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "no such user", "result": "error"}`))
	})

	_, err := f.client.GetUser(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *notifyapi.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "no such user", apiErr.Message)
	require.Contains(t, apiErr.URL, "/user/missing")
}

func TestMutationGuard(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, users.User{ID: "u1"})
	})

	t.Run("anonymous mutation outside the sign-in set is rejected locally", func(t *testing.T) {
		before := f.backendHits()
		_, err := f.client.UpdateUser(context.Background(), "u1", map[string]any{"name": "x"})
		require.ErrorIs(t, err, errs.ErrForbidden)
		require.Equal(t, before, f.backendHits())
	})

	t.Run("anonymous registration is allowed", func(t *testing.T) {
		_, err := f.client.CreateUser(context.Background(), map[string]any{"email_address": "a@x.gov"})
		require.NoError(t, err)
	})

	t.Run("anonymous verify-code exchange is allowed", func(t *testing.T) {
		err := f.client.SendVerifyCode(context.Background(), "u1", "email", "")
		require.NoError(t, err)
	})

	t.Run("mutation against an inactive current service is rejected", func(t *testing.T) {
		ctx := requestctx.WithIdentity(context.Background(), &requestctx.Identity{
			User:    &users.User{ID: "u1"},
			Service: &services.Service{ID: "s1", Active: false},
		})
		_, err := f.client.UpdateUser(ctx, "u1", map[string]any{"name": "x"})
		require.ErrorIs(t, err, errs.ErrServiceInactive)
	})

	t.Run("platform admins may mutate an inactive service", func(t *testing.T) {
		ctx := requestctx.WithIdentity(context.Background(), &requestctx.Identity{
			User:    &users.User{ID: "u1", PlatformAdmin: true},
			Service: &services.Service{ID: "s1", Active: false},
		})
		_, err := f.client.UpdateUser(ctx, "u1", map[string]any{"name": "x"})
		require.NoError(t, err)
	})

	t.Run("reads never consult the guard", func(t *testing.T) {
		_, err := f.client.GetUserByEmail(context.Background(), "a@x.gov")
		require.NoError(t, err)
	})
}

func TestReadThroughCaching(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, services.Service{ID: "s1", Name: "Vaccination reminders", Active: true})
	})
	ctx := context.Background()

	first, err := f.client.GetService(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, f.backendHits())

	second, err := f.client.GetService(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, f.backendHits(), "second read must come from the cache")
	require.Equal(t, first, second)

	require.True(t, f.mr.Exists("service-s1"))
}

func TestUpdateServiceInvalidatesKeyspace(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, services.Service{ID: "s1", Active: true})
	})
	ctx := signedInCtx(&users.User{ID: "u1"})

	f.mr.Set("service-s1", "stale")
	f.mr.Set("service-s1-templates", "stale")
	f.mr.Set("service-s1-template-t1-version-2", "stale")
	f.mr.Set("service-s2", "other service")

	_, err := f.client.UpdateService(ctx, "s1", map[string]any{"name": "Renamed"})
	require.NoError(t, err)

	require.False(t, f.mr.Exists("service-s1"))
	require.False(t, f.mr.Exists("service-s1-templates"))
	require.False(t, f.mr.Exists("service-s1-template-t1-version-2"))
	require.True(t, f.mr.Exists("service-s2"), "other services' entries must survive")
}

func TestGoingLiveDropsPublishedCounts(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, services.Service{ID: "s1", Active: true})
	})
	ctx := signedInCtx(&users.User{ID: "u1"})

	t.Run("status change", func(t *testing.T) {
		f.mr.Set("live-service-and-organization-counts", "stale tally")
		require.NoError(t, f.client.UpdateStatus(ctx, "s1", true, nil))
		require.False(t, f.mr.Exists("live-service-and-organization-counts"))
	})

	t.Run("count-as-live change", func(t *testing.T) {
		f.mr.Set("live-service-and-organization-counts", "stale tally")
		require.NoError(t, f.client.UpdateCountAsLive(ctx, "s1", false))
		require.False(t, f.mr.Exists("live-service-and-organization-counts"))
	})

	t.Run("organization move", func(t *testing.T) {
		f.mr.Set("live-service-and-organization-counts", "stale tally")
		require.NoError(t, f.client.UpdateServiceOrganization(ctx, "s1", "o1"))
		require.False(t, f.mr.Exists("live-service-and-organization-counts"))
	})
}

func TestArchiveServiceFansOutToMembers(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, map[string]any{})
	})
	ctx := signedInCtx(&users.User{ID: "u1"})

	f.mr.Set("service-s1", "stale")
	f.mr.Set("service-s1-data-retention", "stale")
	f.mr.Set("user-u1", "stale member")
	f.mr.Set("user-u2", "stale member")
	f.mr.Set("user-u3", "unrelated")

	err := f.client.ArchiveService(ctx, "s1", []string{"u1", "u2"})
	require.NoError(t, err)

	require.False(t, f.mr.Exists("service-s1"))
	require.False(t, f.mr.Exists("service-s1-data-retention"))
	require.False(t, f.mr.Exists("user-u1"))
	require.False(t, f.mr.Exists("user-u2"))
	require.True(t, f.mr.Exists("user-u3"))
}

func TestTemplateMutationSweepsVersionEntries(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, notifyapi.Template{ID: "t1", Version: 3})
	})
	ctx := signedInCtx(&users.User{ID: "u1"})

	f.mr.Set("service-s1-templates", "stale")
	f.mr.Set("service-s1-template-t1-version-1", "pinned")
	f.mr.Set("service-s1-template-t1-versions", "history")

	_, err := f.client.UpdateTemplate(ctx, "s1", "t1", map[string]any{"content": "new body"})
	require.NoError(t, err)

	require.False(t, f.mr.Exists("service-s1-templates"))
	require.False(t, f.mr.Exists("service-s1-template-t1-version-1"))
	require.False(t, f.mr.Exists("service-s1-template-t1-versions"))
}

func TestRedactTemplateSweepsTemplateCaches(t *testing.T) {
	var captured map[string]any
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		dataJSON(t, w, map[string]any{})
	})
	ctx := signedInCtx(&users.User{ID: "u1"})

	f.mr.Set("service-s1-templates", "stale")
	f.mr.Set("service-s1-template-t1-version-1", "pinned")

	require.NoError(t, f.client.RedactTemplate(ctx, "s1", "t1", "u1"))
	require.Equal(t, true, captured["redact_personalisation"])
	require.Equal(t, "u1", captured["created_by"])
	require.False(t, f.mr.Exists("service-s1-templates"))
	require.False(t, f.mr.Exists("service-s1-template-t1-version-1"))
}

func TestGetDomainsPopulatesBothCaches(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, []map[string]any{
			{"id": "o1", "name": "State Health", "domains": []string{"health.state.gov"}},
			{"id": "o2", "name": "City Transit", "domains": []string{"transit.city.gov"}},
		})
	})
	ctx := context.Background()

	domains, err := f.client.GetDomains(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"health.state.gov", "transit.city.gov"}, domains)
	require.Equal(t, 1, f.backendHits())

	require.True(t, f.mr.Exists("domains"))
	require.True(t, f.mr.Exists("organizations"))

	// the organization list now serves from cache without another fetch
	orgs, err := f.client.GetOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	require.Equal(t, 1, f.backendHits())
}

func TestCreateJobWritesHasJobsThrough(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, notifyapi.Job{ID: "j1"})
	})
	ctx := signedInCtx(&users.User{ID: "u1"})

	_, err := f.client.CreateJob(ctx, "s1", "upload-1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, f.backendHits())

	has, err := f.client.HasJobs(ctx, "s1")
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, 1, f.backendHits(), "flag must come from the write-through entry")
}

func TestUpdateOrganizationNameInvalidation(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, map[string]any{})
	})
	ctx := signedInCtx(&users.User{ID: "u1"})

	f.mr.Set("organizations", "stale")
	f.mr.Set("domains", "stale")
	f.mr.Set("organization-o1-name", "Old Name")

	t.Run("non-name update keeps the name entry", func(t *testing.T) {
		err := f.client.UpdateOrganization(ctx, "o1", map[string]any{"notes": "updated"})
		require.NoError(t, err)
		require.False(t, f.mr.Exists("organizations"))
		require.False(t, f.mr.Exists("domains"))
		require.True(t, f.mr.Exists("organization-o1-name"))
	})

	t.Run("name update drops the name entry", func(t *testing.T) {
		err := f.client.UpdateOrganization(ctx, "o1", map[string]any{"name": "New Name"})
		require.NoError(t, err)
		require.False(t, f.mr.Exists("organization-o1-name"))
	})
}

func TestCachedSurvivesUndecodableEntry(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, services.Service{ID: "s1", Active: true})
	})
	ctx := context.Background()

	f.mr.Set("service-s1", "{not json")

	svc, err := f.client.GetService(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", svc.ID)
	require.Equal(t, 1, f.backendHits(), "corrupt entry falls through to the backend")
}

func TestDisabledCacheStillServes(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dataJSON(t, w, services.Service{ID: "s1"})
	}))
	t.Cleanup(backend.Close)

	kv := cache.New(nil, false)
	client := notifyapi.New(backend.URL, testClientID, testSecret, "", kv)

	svc, err := client.GetService(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", svc.ID)
}
