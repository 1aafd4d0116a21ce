package matching

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matching/internal/app"
	pb "github.com/oggyb/muzz-matching/internal/proto/matching"
)

// Registrar ties the Matching service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
	core   *Core
}

// NewRegistrar creates a new Registrar for the Matching service. core is shared
// with the background workers.
func NewRegistrar(appCtx *app.AppContext, core *Core) *Registrar {
	return &Registrar{appCtx: appCtx, core: core}
}

// Register attaches the Matching service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	pb.RegisterMatchingServiceServer(s, NewService(r.appCtx, r.core))
}
