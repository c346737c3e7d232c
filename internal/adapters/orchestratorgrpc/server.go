package orchestratorgrpc

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"google.golang.org/grpc"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/registry"
)

// Server is the orchestrator-side gRPC endpoint agents report into. It
// folds incoming health/drift reports into a Registry and answers
// FetchHealingCommand from a pending-commands map populated via Dispatch.
// The Autonomous Loop (internal/autoloop) does not call Dispatch.
type Server struct {
	reg *registry.Registry

	mu      sync.Mutex
	pending map[string]domain.RemediationAction

	grpc *grpc.Server
}

// NewServer constructs a Server backed by reg.
func NewServer(reg *registry.Registry) *Server {
	return &Server{reg: reg, pending: map[string]domain.RemediationAction{}}
}

// Dispatch queues action for node to be picked up on its next
// FetchHealingCommand call.
func (s *Server) Dispatch(node domain.Node, action domain.RemediationAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[node.ID()] = action
}

// Serve starts the gRPC listener and blocks until it stops or ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.grpc = grpc.NewServer()
	s.grpc.RegisterService(&serviceDesc, &handler{srv: s})

	go func() {
		<-ctx.Done()
		s.grpc.GracefulStop()
	}()

	log.Printf("[orchestratorgrpc] listening on %s", addr)
	return s.grpc.Serve(lis)
}

// handler adapts Server to the orchestratorServer interface the hand-rolled
// ServiceDesc dispatches into.
type handler struct {
	srv *Server
}

var _ orchestratorServer = (*handler)(nil)

func (h *handler) ReportHealth(ctx context.Context, req *HealthReportRequest) (*HealthReportResponse, error) {
	node, err := domain.ParseNode(req.NodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	h.srv.reg.Heartbeat(node, req.Healthy)
	return &HealthReportResponse{}, nil
}

func (h *handler) ReportDrift(ctx context.Context, req *DriftReportRequest) (*DriftReportResponse, error) {
	node, err := domain.ParseNode(req.NodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	expected, _ := domain.NewFingerprint(req.Expected)
	actual, _ := domain.NewFingerprint(req.Actual)
	report := domain.DriftReport{
		Node:            node,
		Expected:        expected,
		Actual:          actual,
		Severity:        domain.Severity(req.Severity),
		BlastRadiusPct:  req.BlastRadiusPct,
		SuggestedAction: domain.RemediationAction(req.SuggestedAction),
	}
	h.srv.reg.RecordDrift(node, &report, false)
	return &DriftReportResponse{}, nil
}

func (h *handler) FetchHealingCommand(ctx context.Context, req *FetchHealingRequest) (*FetchHealingResponse, error) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	action, ok := h.srv.pending[req.NodeID]
	if !ok {
		return &FetchHealingResponse{Has: false}, nil
	}
	return &FetchHealingResponse{Action: string(action), Has: true}, nil
}

func (h *handler) AcknowledgeHealing(ctx context.Context, req *AckHealingRequest) (*AckHealingResponse, error) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	if pending, ok := h.srv.pending[req.NodeID]; ok && string(pending) == req.Action {
		delete(h.srv.pending, req.NodeID)
	}
	return &AckHealingResponse{}, nil
}
