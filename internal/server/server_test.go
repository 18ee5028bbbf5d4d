package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardpack"
	"github.com/ChuechTeam/CardLab-sub000/internal/config"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
	"github.com/ChuechTeam/CardLab-sub000/internal/match"
	"github.com/ChuechTeam/CardLab-sub000/internal/scripting"
	"github.com/ChuechTeam/CardLab-sub000/internal/storage"
)

const adminPassword = "hunter2"

type adminHarness struct {
	conn   *grpc.ClientConn
	client *AdminClient
	store  *storage.SQLiteStore
	mgr    *match.Manager
}

func newAdminHarness(t *testing.T, passwordHash string) *adminHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cards, err := cardpack.Load(filepath.Join("..", "..", "packs"))
	require.NoError(t, err)
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	settings := duel.DefaultSettings()
	settings.SecondsPerTurn = 0
	mgr := match.NewManager(match.Options{
		Config:    config.MatchConfig{JoinTokenTTL: time.Minute, DefaultDeck: "starter", MaxDuels: 2},
		Settings:  settings,
		Cards:     cards,
		Scripts:   scripting.NewRegistry(logger),
		Store:     store,
		TokenCost: bcrypt.MinCost,
	}, logger)
	t.Cleanup(mgr.CloseAll)

	g := NewGRPC(config.AdminConfig{PasswordHash: passwordHash},
		NewAdminServer(mgr, store, cards, logger), logger)
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &adminHarness{conn: conn, client: NewAdminClient(conn), store: store, mgr: mgr}
}

func hashPassword(t *testing.T) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func authed() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+adminPassword)
}

func TestAdmin_Health(t *testing.T) {
	h := newAdminHarness(t, "")
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: AdminServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestAdmin_Auth(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newAdminHarness(t, "")
		_, err := h.client.Call(authed(), "ListMatches", nil)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("missing or wrong password", func(t *testing.T) {
		h := newAdminHarness(t, hashPassword(t))
		_, err := h.client.Call(context.Background(), "ListMatches", nil)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))

		ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "nope")
		_, err = h.client.Call(ctx, "ListMatches", nil)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}

func TestAdmin_Matches(t *testing.T) {
	h := newAdminHarness(t, hashPassword(t))
	ctx := authed()

	created, err := h.client.Call(ctx, "CreateMatch", map[string]any{
		"playerNames": []any{"alice", "bob"},
		"seed":        5,
	})
	require.NoError(t, err)
	id := created.GetFields()["matchId"].GetStringValue()
	require.NotEmpty(t, id)
	assert.Len(t, created.GetFields()["tokens"].GetListValue().GetValues(), 2)
	assert.Equal(t, float64(5), created.GetFields()["seed"].GetNumberValue())

	list, err := h.client.Call(ctx, "ListMatches", nil)
	require.NoError(t, err)
	matches := list.GetFields()["matches"].GetListValue().GetValues()
	require.Len(t, matches, 1)
	m := matches[0].GetStructValue().GetFields()
	assert.Equal(t, id, m["id"].GetStringValue())
	assert.Equal(t, "WAITING", m["state"].GetStringValue())

	got, err := h.client.Call(ctx, "GetMatch", map[string]any{"matchId": id})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.GetFields()["playerNames"].GetListValue().GetValues()[0].GetStringValue())

	_, err = h.client.Call(ctx, "GetMatch", map[string]any{"matchId": "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = h.client.Call(ctx, "GetMatch", nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Call(ctx, "CreateMatch", map[string]any{"decks": []any{"nope"}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Call(ctx, "CreateMatch", nil)
	require.NoError(t, err)
	_, err = h.client.Call(ctx, "CreateMatch", nil)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = h.client.Call(ctx, "RemoveMatch", map[string]any{"matchId": id})
	require.NoError(t, err)
	_, err = h.client.Call(ctx, "RemoveMatch", map[string]any{"matchId": id})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestAdmin_ResultsAndPacks(t *testing.T) {
	h := newAdminHarness(t, hashPassword(t))
	ctx := authed()

	winner := 1
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.store.SaveResult(context.Background(), storage.DuelResult{
		DuelID:      "d1",
		StartedAt:   now,
		EndedAt:     now.Add(time.Minute),
		Turns:       4,
		PlayerNames: [2]string{"alice", "bob"},
		Winner:      &winner,
	}))

	res, err := h.client.Call(ctx, "RecentResults", map[string]any{"limit": 5})
	require.NoError(t, err)
	results := res.GetFields()["results"].GetListValue().GetValues()
	require.Len(t, results, 1)
	r := results[0].GetStructValue().GetFields()
	assert.Equal(t, "d1", r["duelId"].GetStringValue())
	assert.Equal(t, float64(1), r["winner"].GetNumberValue())

	packs, err := h.client.Call(ctx, "ListPacks", nil)
	require.NoError(t, err)
	loaded := packs.GetFields()["loaded"].GetListValue().GetValues()
	require.Len(t, loaded, 1)
	assert.Equal(t, "Starter", loaded[0].GetStructValue().GetFields()["name"].GetStringValue())
	assert.Empty(t, packs.GetFields()["imported"].GetListValue().GetValues())
}

func TestInterceptors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	info := &grpc.UnaryServerInfo{FullMethod: "/" + AdminServiceName + "/ListMatches"}

	t.Run("recovery", func(t *testing.T) {
		_, err := RecoveryInterceptor(logger)(context.Background(), nil, info,
			func(context.Context, any) (any, error) { panic("boom") })
		assert.Equal(t, codes.Internal, status.Code(err))
	})

	t.Run("chain order", func(t *testing.T) {
		var order []string
		mark := func(name string) grpc.UnaryServerInterceptor {
			return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
		resp, err := ChainUnaryInterceptors(mark("a"), mark("b"))(context.Background(), "req", info,
			func(_ context.Context, req any) (any, error) {
				order = append(order, "handler")
				return req, nil
			})
		require.NoError(t, err)
		assert.Equal(t, "req", resp)
		assert.Equal(t, []string{"a", "b", "handler"}, order)
	})

	t.Run("health is open", func(t *testing.T) {
		called := false
		_, err := AdminInterceptor("")(context.Background(), nil,
			&grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
			func(context.Context, any) (any, error) { called = true; return nil, nil })
		require.NoError(t, err)
		assert.True(t, called)
	})
}
