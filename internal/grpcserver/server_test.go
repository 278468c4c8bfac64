package grpcserver

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"mtgdata/internal/cards"
	"mtgdata/internal/catalog"
	"mtgdata/internal/loader"
	"mtgdata/internal/metrics"
	"mtgdata/internal/testutil"
	"mtgdata/pkg/database"
)

const (
	bufSize  = 1024 * 1024
	boltUUID = "5f8287b1-5bb6-5f4c-ad17-316a40d5bb0c"
)

type testEnv struct {
	client  *CardServiceClient
	health  healthpb.HealthClient
	store   *catalog.Store
	metrics *metrics.Metrics
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteCatalog(t, dir,
		`INSERT INTO meta VALUES ('2024-06-01', '5.2.2')`,
		`INSERT INTO sets (code, name, type, isOnlineOnly) VALUES ('ABC', 'Alpha', 'core', 0)`,
		`INSERT INTO sets (code, name, type, isOnlineOnly) VALUES ('XYZ', 'Xylo', 'expansion', 1)`,
		`INSERT INTO cards (uuid, name, setCode) VALUES ('`+boltUUID+`', 'Lightning Bolt', 'ABC')`,
	)
	testutil.WritePricing(t, dir,
		`INSERT INTO cardPrices VALUES ('`+boltUUID+`', 2.5, 'USD', 'paper', '2024-06-01', 'retail', NULL, 'TCGplayer')`,
	)

	mgr := database.NewManager(database.Config{
		CatalogPath: filepath.Join(dir, "AllPrintings.sqlite"),
		PricingPath: filepath.Join(dir, "AllPricesToday.sqlite"),
	}, zerolog.Nop())
	ld := loader.New(mgr, zerolog.Nop(), nil)
	store := catalog.New(ld, zerolog.Nop(), nil)
	m := metrics.New(prometheus.NewRegistry())

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	store.OnLoad(HealthHook(healthSrv))

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryInterceptor(zerolog.Nop(), m)))
	RegisterCardServiceServer(srv, NewServer(cards.NewService(store, ld), zerolog.Nop()))
	healthpb.RegisterHealthServer(srv, healthSrv)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		_ = lis.Close()
		_ = mgr.Close()
	})

	return &testEnv{
		client:  NewCardServiceClient(conn),
		health:  healthpb.NewHealthClient(conn),
		store:   store,
		metrics: m,
	}
}

func mustStruct(t *testing.T, v map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(v)
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return s
}

func loaded(t *testing.T) *testEnv {
	t.Helper()
	env := setupTestServer(t)
	if err := env.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return env
}

func TestHealthFollowsCatalogLoad(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	resp, err := env.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status before load = %v", resp.GetStatus())
	}

	if err := env.store.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	resp, err = env.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status after load = %v", resp.GetStatus())
	}
}

func TestGetMetadata(t *testing.T) {
	env := loaded(t)

	resp, err := env.client.Call(context.Background(), MethodGetMetadata, nil)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if got := resp.GetFields()["version"].GetStringValue(); got != "5.2.2" {
		t.Errorf("version = %q", got)
	}
}

func TestListSets(t *testing.T) {
	env := loaded(t)
	ctx := context.Background()

	resp, err := env.client.Call(ctx, MethodListSets, nil)
	if err != nil {
		t.Fatalf("list sets: %v", err)
	}
	if n := len(resp.GetFields()["sets"].GetListValue().GetValues()); n != 1 {
		t.Errorf("paper sets = %d, want 1", n)
	}

	resp, err = env.client.Call(ctx, MethodListSets, mustStruct(t, map[string]any{"includeOnlineOnly": true}))
	if err != nil {
		t.Fatalf("list sets: %v", err)
	}
	if n := len(resp.GetFields()["sets"].GetListValue().GetValues()); n != 2 {
		t.Errorf("all sets = %d, want 2", n)
	}
}

func TestListSetsBeforeLoadIsNotFound(t *testing.T) {
	env := setupTestServer(t)

	_, err := env.client.Call(context.Background(), MethodListSets, nil)
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
}

func TestGetSet(t *testing.T) {
	env := loaded(t)
	ctx := context.Background()

	resp, err := env.client.Call(ctx, MethodGetSet, mustStruct(t, map[string]any{"code": "ABC"}))
	if err != nil {
		t.Fatalf("get set: %v", err)
	}
	if got := resp.GetFields()["name"].GetStringValue(); got != "Alpha" {
		t.Errorf("name = %q", got)
	}

	_, err = env.client.Call(ctx, MethodGetSet, mustStruct(t, map[string]any{"code": "NOPE"}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown set code = %v, want NotFound", status.Code(err))
	}
	_, err = env.client.Call(ctx, MethodGetSet, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestListCardsBySet(t *testing.T) {
	env := loaded(t)

	resp, err := env.client.Call(context.Background(), MethodListCardsBySet, mustStruct(t, map[string]any{"code": "XYZ"}))
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if n := len(resp.GetFields()["cards"].GetListValue().GetValues()); n != 0 {
		t.Errorf("cards = %d, want 0", n)
	}
}

func TestGetCardsByUUIDCarriesPricing(t *testing.T) {
	env := loaded(t)
	ctx := context.Background()

	req := mustStruct(t, map[string]any{"uuids": []any{boltUUID}})
	resp, err := env.client.Call(ctx, MethodGetCardsByUUID, req)
	if err != nil {
		t.Fatalf("get cards: %v", err)
	}
	values := resp.GetFields()["cards"].GetListValue().GetValues()
	if len(values) != 1 {
		t.Fatalf("cards = %d, want 1", len(values))
	}
	card := values[0].GetStructValue()
	price := card.GetFields()["pricing"].GetStructValue().
		GetFields()["retail"].GetStructValue().
		GetFields()["normal"].GetStructValue().
		GetFields()["tcgplayer"].GetNumberValue()
	if price != 2.5 {
		t.Errorf("price = %v, want 2.5", price)
	}

	_, err = env.client.Call(ctx, MethodGetCardsByUUID, mustStruct(t, map[string]any{"uuids": []any{"bad"}}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("invalid uuid code = %v", status.Code(err))
	}
	_, err = env.client.Call(ctx, MethodGetCardsByUUID, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty batch code = %v", status.Code(err))
	}
}

func TestSearchCards(t *testing.T) {
	env := loaded(t)
	ctx := context.Background()

	resp, err := env.client.Call(ctx, MethodSearchCards, mustStruct(t, map[string]any{"query": "bolt", "limit": 5}))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if n := len(resp.GetFields()["cards"].GetListValue().GetValues()); n != 1 {
		t.Errorf("matches = %d, want 1", n)
	}
	if got := resp.GetFields()["limit"].GetNumberValue(); got != 5 {
		t.Errorf("limit = %v", got)
	}

	_, err = env.client.Call(ctx, MethodSearchCards, mustStruct(t, map[string]any{"query": " "}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("blank query code = %v", status.Code(err))
	}

	method := "/" + ServiceName + "/" + MethodSearchCards
	if got := promtest.ToFloat64(env.metrics.GrpcRequestsTotal.WithLabelValues(method, codes.InvalidArgument.String())); got != 1 {
		t.Errorf("invalid argument requests = %v, want 1", got)
	}
}
