package orchestratorgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

// Client implements ports.OrchestratorPort by dialing a Server over gRPC.
// It runs inside an agent/daemon process talking up to the fleet-wide
// orchestrator.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to an orchestratorgrpc Server at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial orchestrator %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

var _ ports.OrchestratorPort = (*Client)(nil)

func (c *Client) ReportHealth(ctx context.Context, node domain.Node, healthy bool) error {
	out := new(HealthReportResponse)
	in := &HealthReportRequest{NodeID: node.ID(), Healthy: healthy}
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ReportHealth", in, out); err != nil {
		return fmt.Errorf("%w: report health: %v", domain.ErrPortFailure, err)
	}
	return nil
}

func (c *Client) ReportDrift(ctx context.Context, report domain.DriftReport) error {
	out := new(DriftReportResponse)
	in := &DriftReportRequest{
		NodeID:          report.Node.ID(),
		Expected:        report.Expected.String(),
		Actual:          report.Actual.String(),
		Severity:        string(report.Severity),
		BlastRadiusPct:  report.BlastRadiusPct,
		SuggestedAction: string(report.SuggestedAction),
	}
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ReportDrift", in, out); err != nil {
		return fmt.Errorf("%w: report drift: %v", domain.ErrPortFailure, err)
	}
	return nil
}

func (c *Client) FetchHealingCommand(ctx context.Context, node domain.Node) (domain.RemediationAction, bool, error) {
	out := new(FetchHealingResponse)
	in := &FetchHealingRequest{NodeID: node.ID()}
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/FetchHealingCommand", in, out); err != nil {
		return "", false, fmt.Errorf("%w: fetch healing command: %v", domain.ErrPortFailure, err)
	}
	if !out.Has {
		return "", false, nil
	}
	return domain.RemediationAction(out.Action), true, nil
}

func (c *Client) AcknowledgeHealing(ctx context.Context, node domain.Node, action domain.RemediationAction) error {
	out := new(AckHealingResponse)
	in := &AckHealingRequest{NodeID: node.ID(), Action: string(action)}
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/AcknowledgeHealing", in, out); err != nil {
		return fmt.Errorf("%w: acknowledge healing: %v", domain.ErrPortFailure, err)
	}
	return nil
}
