//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/scrollfeed/internal/testutil"
	"github.com/Sternrassler/scrollfeed/pkg/ratelimit"
	"github.com/Sternrassler/scrollfeed/pkg/session"
	"github.com/Sternrassler/scrollfeed/pkg/source"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newGatedClient(t *testing.T, mock *testutil.MockSource, redisClient *redis.Client) *source.Client {
	t.Helper()

	cfg := source.DefaultConfig("scrollfeed-integration/1.0")
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 5 * time.Second
	cfg.Redis = redisClient
	cfg.ThrottleDelay = 10 * time.Millisecond

	client, err := source.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func waitForView(t *testing.T, updates <-chan session.View, match func(session.View) bool) session.View {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case v, ok := <-updates:
			require.True(t, ok, "updates closed before a matching view")
			if match(v) {
				return v
			}
		case <-timeout:
			t.Fatal("timed out waiting for view")
		}
	}
}

// TestFullScrollFlow scrolls through a whole collection: HTTP source with
// Redis gate, session loop and out-of-order safe merging.
func TestFullScrollFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockSource(3, 6)
	defer mock.Close()
	mock.SetPage(1, testutil.PageBehavior{Headers: map[string]string{
		"X-RateLimit-Remaining": "100",
		"X-RateLimit-Reset":     "60",
	}})

	client := newGatedClient(t, mock, redisClient)
	loop := session.NewLoop(session.New(client, "/users?sort=email", session.WithLogger(zerolog.Nop())))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go loop.Run(ctx)
	defer loop.Teardown()

	ready, err := loop.Ready().Await(ctx)
	require.NoError(t, err)
	assert.Len(t, ready.Records, 6)
	assert.True(t, ready.ShowSentinel)

	for page := 2; page <= 3; page++ {
		require.NoError(t, loop.SentinelVisible())
		want := page * 6
		v := waitForView(t, loop.Updates(), func(v session.View) bool { return len(v.Records) == want && !v.Loading })
		assert.Equal(t, testutil.UserEmail(want), v.Records[want-1].Display)
	}

	state, err := ratelimit.NewTracker(redisClient, 0, zerolog.Nop()).GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, state.Remaining)
	assert.Equal(t, []int{1, 2, 3}, mock.Requests())
}

// TestRateLimitBlocksAndRecovers checks that an exhausted upstream budget
// fails the fetch without touching the aggregate, and that scrolling again
// after the budget resets loads the page.
func TestRateLimitBlocksAndRecovers(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockSource(3, 2)
	defer mock.Close()
	mock.SetPage(1, testutil.PageBehavior{Headers: map[string]string{
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     "60",
	}})

	client := newGatedClient(t, mock, redisClient)
	s := session.New(client, "/users", session.WithLogger(zerolog.Nop()))
	defer s.Teardown()

	for _, f := range s.Mount() {
		require.True(t, s.Apply(f.Run()))
	}
	require.Len(t, s.View().Records, 2)

	fetches := s.SentinelVisible()
	require.Len(t, fetches, 1)
	c := fetches[0].Run()
	assert.ErrorIs(t, c.Err, source.ErrRequestBlocked)
	assert.True(t, s.Apply(c))
	assert.Len(t, s.View().Records, 2)
	assert.Equal(t, 1, mock.RequestCount())

	require.NoError(t, ratelimit.NewTracker(redisClient, 0, zerolog.Nop()).Reset(context.Background()))

	fetches = s.SentinelVisible()
	require.Len(t, fetches, 1)
	assert.Equal(t, 2, fetches[0].Page)
	require.True(t, s.Apply(fetches[0].Run()))
	assert.Len(t, s.View().Records, 4)
}

// TestTeardownAbortsUpstreamRequest tears a session down while the upstream
// holds the response.
func TestTeardownAbortsUpstreamRequest(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockSource(3, 2)
	defer mock.Close()
	release := make(chan struct{})
	defer close(release)
	mock.SetPage(2, testutil.PageBehavior{Release: release})

	client := newGatedClient(t, mock, redisClient)
	s := session.New(client, "/users", session.WithLogger(zerolog.Nop()))

	for _, f := range s.Mount() {
		require.True(t, s.Apply(f.Run()))
	}

	fetches := s.SentinelVisible()
	require.Len(t, fetches, 1)

	done := make(chan session.Completion, 1)
	go func() { done <- fetches[0].Run() }()

	time.Sleep(50 * time.Millisecond)
	before := s.View()
	s.Teardown()

	select {
	case c := <-done:
		assert.True(t, source.IsCancelled(c.Err))
		assert.False(t, s.Apply(c))
	case <-time.After(5 * time.Second):
		t.Fatal("fetch was not aborted by teardown")
	}
	assert.Equal(t, before, s.View())
}
