package api

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"prichal/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func newBufconnServer(t *testing.T, cfg *config.APIConfig, svc Services) (*GRPCServer, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	logger := zerolog.New(io.Discard)

	srv, err := newGRPCServer(cfg, svc, lis, nil, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, conn
}

func TestGRPCHealth(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{{Key: "k", Extra: "e"}},
		},
	}
	storage := &fakePinger{}
	srv, conn := newBufconnServer(t, &cfg, Services{Storage: storage})
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	// Проверка здоровья не требует ключа
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	storage.set(errors.New("disk I/O error"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.CheckHealth(ctx))

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	storage.set(nil)
	srv.CheckHealth(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func engineCall(t *testing.T, conn *grpc.ClientConn, key, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)

	ctx := context.Background()
	if key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", key, "x-api-extra", extras[key])
	}
	out := &structpb.Struct{}
	err = conn.Invoke(ctx, "/"+EngineServiceName+"/"+method, in, out)
	return out, err
}

func TestGRPCBookingEngine(t *testing.T) {
	cfg := apiConfig(0)
	_, conn := newBufconnServer(t, &cfg, newTestServices(t))

	t.Run("ListResources", func(t *testing.T) {
		out, err := engineCall(t, conn, customerKey, "ListResources", nil)
		require.NoError(t, err)
		assert.Len(t, out.GetFields()["resources"].GetListValue().GetValues(), 2)
	})

	t.Run("GetAvailability", func(t *testing.T) {
		out, err := engineCall(t, conn, customerKey, "GetAvailability", map[string]any{
			"resource_id": "speed-1", "date": "2026-10-21", "quantity": 1, "duration_minutes": 120,
		})
		require.NoError(t, err)
		slots := out.GetFields()["slots"].GetListValue().GetValues()
		require.Len(t, slots, 15)
		assert.Equal(t, "09:00", slots[0].GetStructValue().GetFields()["start_time"].GetStringValue())
	})

	t.Run("Quote", func(t *testing.T) {
		out, err := engineCall(t, conn, customerKey, "Quote", map[string]any{
			"resource_id": "speed-1",
			"slot":        map[string]any{"date": "2026-10-21", "start_time": "10:00", "duration_minutes": 120},
			"quantity":    1,
			"guests":      2,
		})
		require.NoError(t, err)
		pricing := out.GetFields()["pricing"].GetStructValue().GetFields()
		assert.Equal(t, float64(590000), pricing["final_amount"].GetNumberValue())
		display := out.GetFields()["display"].GetStructValue().GetFields()
		assert.Equal(t, "₹5,900.00", display["final"].GetStringValue())
	})

	t.Run("EngineErrors", func(t *testing.T) {
		tests := []struct {
			name   string
			method string
			req    map[string]any
			code   codes.Code
			kind   string
		}{
			{"OddDuration", "GetAvailability", map[string]any{"resource_id": "speed-1", "date": "2026-10-21", "duration_minutes": 75}, codes.InvalidArgument, "VALIDATION_ERROR"},
			{"UnknownField", "Quote", map[string]any{"unknown": 1}, codes.InvalidArgument, "VALIDATION_ERROR"},
			{"UnknownResource", "GetAvailability", map[string]any{"resource_id": "nope", "date": "2026-10-21"}, codes.NotFound, "NOT_FOUND"},
			{"OutOfWindow", "GetAvailability", map[string]any{"resource_id": "speed-1", "date": "2027-01-10"}, codes.FailedPrecondition, "OUT_OF_WINDOW"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := engineCall(t, conn, customerKey, tt.method, tt.req)
				require.Error(t, err)
				st, _ := status.FromError(err)
				assert.Equal(t, tt.code, st.Code())
				assert.True(t, strings.HasPrefix(st.Message(), tt.kind+":"), st.Message())
			})
		}
	})

	t.Run("Auth", func(t *testing.T) {
		_, err := engineCall(t, conn, "", "ListResources", nil)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))

		// ключ платёжного шлюза не даёт доступа к каталогу
		_, err = engineCall(t, conn, paymentsKey, "ListResources", nil)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))

		_, err = engineCall(t, conn, adminKey, "ListResources", nil)
		assert.NoError(t, err)
	})
}

func TestGRPCServer_EngineOptional(t *testing.T) {
	cfg := config.APIConfig{}
	_, conn := newBufconnServer(t, &cfg, Services{Storage: &fakePinger{}})

	_, err := engineCall(t, conn, "", "ListResources", nil)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"})
	assert.Error(t, err)
}
