package server

import "google.golang.org/grpc"

// Registrar attaches one service to the gRPC server. NewGRPCServer calls
// Register once per registrar, before health and reflection are added.
type Registrar interface {
	Register(s *grpc.Server)
}
