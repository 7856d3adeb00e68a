package bootstrap

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger(config.LogConfig{Level: "debug", Format: "text"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger = NewLogger(config.LogConfig{Level: "loud", Format: "json"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestOpenStorage_Memory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.Default()
	cfg.Storage.Driver = "memory"

	store, err := OpenStorage(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer store.Close()

	flights, err := store.Flights.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, flights, 3)

	free, err := store.Seats.ListFree(context.Background(), flights[0].ID, flights[0].AircraftID, domain.TravelClassBusiness, 0)
	require.NoError(t, err)
	assert.Len(t, free, 12)
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.Default()
	cfg.Storage.Driver = "sqlite"

	_, err := OpenStorage(context.Background(), cfg, logger)
	assert.EqualError(t, err, `unknown storage driver "sqlite"`)
}

func TestNewServers_Routes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, swaggerFile), []byte(`{"swagger":"2.0"}`), 0o644))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.GRPC.Address = lis.Addr().String()
	cfg.HTTP.SwaggerDir = dir

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s, err := newServers(cfg, api)
	require.NoError(t, err)
	defer s.healthConn.Close()

	go func() { _ = s.grpcServer.Serve(lis) }()
	defer s.grpcServer.Stop()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	testCases := []struct {
		path       string
		wantStatus int
	}{
		{path: "/api/v1/flights", wantStatus: http.StatusTeapot},
		{path: "/swagger/" + swaggerFile, wantStatus: http.StatusOK},
		{path: "/docs/index.html", wantStatus: http.StatusOK},
		{path: "/healthz", wantStatus: http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest("GET", tc.path, nil))
			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}
