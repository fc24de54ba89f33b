package api

import (
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// KitchenHealthService имя сервиса в gRPC health
const KitchenHealthService = "kitchen.Monitor"

// StartGRPCHealth поднимает gRPC сервер со стандартным health-сервисом.
// Статус выставляет вызывающий: SERVING только при валидной топологии станций.
func StartGRPCHealth(port string) (*grpc.Server, *health.Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen gRPC: %w", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus(KitchenHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	go func() {
		log.Printf("📡 gRPC health starting on port %s", port)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("⚠️ gRPC server stopped: %v", err)
		}
	}()
	return grpcServer, healthServer, nil
}

// SetKitchenServing переключает статус health-сервиса
func SetKitchenServing(h *health.Server, serving bool) {
	if h == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus(KitchenHealthService, status)
}
