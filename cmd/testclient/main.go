// Command testclient probes a running runtime: the gRPC health service and
// the HTTP /health route. It exits non-zero unless both report healthy.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "fish-assistant/internal/api/grpc"
	"fish-assistant/internal/observability/logging"
)

func main() {
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC address")
	httpURL := flag.String("http", "http://localhost:8000", "HTTP base URL")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	healthy := checkGRPC(ctx, *grpcAddr) && checkHTTP(ctx, *httpURL)
	if !healthy {
		cancel()
		os.Exit(1)
	}
}

func checkGRPC(ctx context.Context, addr string) bool {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("Failed to create gRPC client")
		return false
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	ok := true
	for _, service := range []string{"", grpcapi.ServiceName} {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			log.Error().Err(err).Str("service", service).Msg("gRPC health check failed")
			ok = false
			continue
		}
		log.Info().Str("service", service).Str("status", resp.Status.String()).Msg("gRPC health")
		ok = ok && resp.Status == grpc_health_v1.HealthCheckResponse_SERVING
	}
	return ok
}

func checkHTTP(ctx context.Context, base string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		log.Error().Err(err).Msg("Invalid HTTP URL")
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("HTTP health check failed")
		return false
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Mode   string `json:"mode"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	log.Info().Int("code", resp.StatusCode).Str("status", body.Status).Str("mode", body.Mode).Msg("HTTP health")
	return resp.StatusCode == http.StatusOK && body.Status == "ok"
}
