package grpc

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName est le nom annoncé au health check
const ServiceName = "ember.v1.Ember"

// Server n'expose que le protocole de health standard (sondes k8s,
// grpc_health_probe). Les données passent par HTTP.
type Server struct {
	health     *health.Server
	reflection bool
}

func NewServer(withReflection bool) *Server {
	return &Server{
		health:     health.NewServer(),
		reflection: withReflection,
	}
}

func (s *Server) Register(grpcServer *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcServer, s.health)
	if s.reflection {
		reflection.Register(grpcServer)
	}
}

// SetServing passe le service global et ServiceName à SERVING
func (s *Server) SetServing() {
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

// Shutdown fait échouer les sondes avant l'arrêt des serveurs
func (s *Server) Shutdown() {
	slog.Info("🩺 Health status set to NOT_SERVING")
	s.health.Shutdown()
}
