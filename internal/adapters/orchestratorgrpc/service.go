package orchestratorgrpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "chimera.Orchestrator"

// orchestratorServer is implemented by the orchestrator-side handler; the
// generated-style ServiceDesc below dispatches into it.
type orchestratorServer interface {
	ReportHealth(context.Context, *HealthReportRequest) (*HealthReportResponse, error)
	ReportDrift(context.Context, *DriftReportRequest) (*DriftReportResponse, error)
	FetchHealingCommand(context.Context, *FetchHealingRequest) (*FetchHealingResponse, error)
	AcknowledgeHealing(context.Context, *AckHealingRequest) (*AckHealingResponse, error)
}

func reportHealthHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthReportRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orchestratorServer).ReportHealth(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReportHealth"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(orchestratorServer).ReportHealth(ctx, req.(*HealthReportRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func reportDriftHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DriftReportRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orchestratorServer).ReportDrift(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReportDrift"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(orchestratorServer).ReportDrift(ctx, req.(*DriftReportRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func fetchHealingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchHealingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orchestratorServer).FetchHealingCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/FetchHealingCommand"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(orchestratorServer).FetchHealingCommand(ctx, req.(*FetchHealingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func ackHealingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AckHealingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orchestratorServer).AcknowledgeHealing(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AcknowledgeHealing"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(orchestratorServer).AcknowledgeHealing(ctx, req.(*AckHealingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc mirrors what protoc-gen-go-grpc would emit for a 4-RPC
// unary-only service.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*orchestratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReportHealth", Handler: reportHealthHandler},
		{MethodName: "ReportDrift", Handler: reportDriftHandler},
		{MethodName: "FetchHealingCommand", Handler: fetchHealingHandler},
		{MethodName: "AcknowledgeHealing", Handler: ackHealingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chimera/orchestrator.proto",
}
