// Package mcpserver implements the `mcp` command's MCP surface (spec §6.4):
// write tools execute_deployment, rollback_deployment, check_congruence, and
// read resources node://health and deployment://{sessionId}, built on
// github.com/modelcontextprotocol/go-sdk. The teacher carries no MCP layer
// of its own (its equivalent remote-control surface is the checkin/gRPC
// transport), so this package is grounded only on the go-sdk's go.mod entry
// named in other_examples/manifests/zicongmei-gke-mcp — there is no adaptable
// source in the pack for the SDK's tool/resource registration shape, so the
// API usage here follows the SDK's own documented generic AddTool pattern
// rather than a teacher file.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chimerahq/chimera/internal/adapters/sqliterepo"
	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/drift"
	"github.com/chimerahq/chimera/internal/fleet"
	"github.com/chimerahq/chimera/internal/registry"
	"github.com/chimerahq/chimera/internal/rollback"
)

// Response status values, per spec §6.4.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Structured error codes for resource/tool lookup failures, per spec §6.4.
const (
	CodeToolNotFound     = "tool_not_found"
	CodeResourceNotFound = "resource_not_found"
	CodeInternalError    = "internal_error"
)

// toolResponse is the uniform JSON shape every tool call returns.
type toolResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Deps wires the use cases the MCP surface dispatches into.
type Deps struct {
	Fleet       *fleet.Fleet
	Rollback    *rollback.Rollback
	Drift       *drift.Service
	Registry    *registry.Registry
	Deployments *sqliterepo.Store
	Targets     []domain.Node
	Fingerprint domain.Fingerprint
}

// NewServer builds the MCP server with every tool and resource registered.
func NewServer(deps Deps) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "chimera", Version: "0.1.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "execute_deployment",
		Description: "Builds and deploys a config generation to the given targets.",
	}, deps.executeDeployment)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rollback_deployment",
		Description: "Rolls back the given targets to a prior generation.",
	}, deps.rollbackDeployment)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_congruence",
		Description: "Runs a drift/congruence check against the given targets.",
	}, deps.checkCongruence)

	server.AddResource(&mcp.Resource{
		URI:      "node://health",
		Name:     "node-health",
		MIMEType: "application/json",
	}, deps.nodeHealthResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "deployment://{sessionId}",
		Name:        "deployment",
		MIMEType:    "application/json",
	}, deps.deploymentResource)

	return server
}

// --- execute_deployment ---

type executeDeploymentInput struct {
	SessionName string   `json:"session_name"`
	ConfigPath  string   `json:"config_path"`
	Command     string   `json:"command"`
	Targets     []string `json:"targets"`
}

func (d Deps) executeDeployment(ctx context.Context, req *mcp.CallToolRequest, in executeDeploymentInput) (*mcp.CallToolResult, toolResponse, error) {
	cfgPath, err := domain.NewConfigPath(in.ConfigPath)
	if err != nil {
		return nil, toolResponse{Status: StatusError, Message: err.Error(), Code: CodeInternalError}, nil
	}

	targets, err := parseTargets(in.Targets)
	if err != nil {
		return nil, toolResponse{Status: StatusError, Message: err.Error(), Code: CodeInternalError}, nil
	}

	result, err := d.Fleet.Execute(ctx, in.SessionName, cfgPath, in.Command, targets)
	if err != nil {
		return nil, toolResponse{Status: StatusError, Message: err.Error(), Code: CodeInternalError}, nil
	}

	if result.AnySucceeded() {
		return nil, toolResponse{Status: StatusSuccess, Message: fmt.Sprintf("deployment %s completed", result.Deployment.SessionID)}, nil
	}
	return nil, toolResponse{Status: StatusFailed, Message: fmt.Sprintf("deployment %s failed on every target", result.Deployment.SessionID)}, nil
}

// --- rollback_deployment ---

type rollbackDeploymentInput struct {
	Targets    []string `json:"targets"`
	Generation *int     `json:"generation,omitempty"`
}

func (d Deps) rollbackDeployment(ctx context.Context, req *mcp.CallToolRequest, in rollbackDeploymentInput) (*mcp.CallToolResult, toolResponse, error) {
	targets, err := parseTargets(in.Targets)
	if err != nil {
		return nil, toolResponse{Status: StatusError, Message: err.Error(), Code: CodeInternalError}, nil
	}

	outcomes := d.Rollback.Execute(ctx, targets, in.Generation)

	failed := 0
	for _, o := range outcomes {
		if !o.OK {
			failed++
		}
	}
	if failed == 0 {
		return nil, toolResponse{Status: StatusSuccess, Message: fmt.Sprintf("rolled back %d nodes", len(outcomes))}, nil
	}
	if failed == len(outcomes) {
		return nil, toolResponse{Status: StatusFailed, Message: "rollback failed on every target"}, nil
	}
	return nil, toolResponse{Status: StatusFailed, Message: fmt.Sprintf("rollback failed on %d/%d targets", failed, len(outcomes))}, nil
}

// --- check_congruence ---

type checkCongruenceInput struct {
	Targets []string `json:"targets"`
}

func (d Deps) checkCongruence(ctx context.Context, req *mcp.CallToolRequest, in checkCongruenceInput) (*mcp.CallToolResult, toolResponse, error) {
	targets, err := parseTargets(in.Targets)
	if err != nil {
		return nil, toolResponse{Status: StatusError, Message: err.Error(), Code: CodeInternalError}, nil
	}

	plan := d.Drift.Check(ctx, targets, d.Fingerprint)
	if !plan.HasDrift() {
		return nil, toolResponse{Status: StatusSuccess, Message: "fleet is congruent"}, nil
	}
	return nil, toolResponse{Status: StatusFailed, Message: fmt.Sprintf("drift detected on %d node(s): action=%s", len(plan.DriftReports), plan.GlobalAction)}, nil
}

// --- node://health resource ---

func (d Deps) nodeHealthResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	type nodeHealth struct {
		ID     string          `json:"id"`
		Health registry.Health `json:"health"`
	}

	nodes := d.Registry.Nodes()
	out := make([]nodeHealth, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeHealth{ID: n.ID(), Health: d.Registry.Health(n)})
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CodeInternalError, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: "node://health", MIMEType: "application/json", Text: string(payload)},
		},
	}, nil
}

// --- deployment://{sessionId} resource ---

func (d Deps) deploymentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	sessionID := strings.TrimPrefix(req.Params.URI, "deployment://")
	if sessionID == "" || sessionID == req.Params.URI {
		return nil, fmt.Errorf("%s: malformed deployment URI %q", CodeResourceNotFound, req.Params.URI)
	}

	rec, ok, err := d.Deployments.LoadDeployment(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CodeInternalError, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: no deployment recorded for session %q", CodeResourceNotFound, sessionID)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CodeInternalError, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: req.Params.URI, MIMEType: "application/json", Text: string(payload)},
		},
	}, nil
}

func parseTargets(raw []string) ([]domain.Node, error) {
	nodes := make([]domain.Node, 0, len(raw))
	for _, t := range raw {
		n, err := domain.ParseNode(t)
		if err != nil {
			return nil, fmt.Errorf("parse target %q: %w", t, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
