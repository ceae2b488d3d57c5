package sensor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lastchanged.v1.SensorService"

// Full method names.
const (
	GetSensorMethod   = "/" + ServiceName + "/GetSensor"
	ListSensorsMethod = "/" + ServiceName + "/ListSensors"
)

// SensorServiceServer is the server side of the read API.
type SensorServiceServer interface {
	GetSensor(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	ListSensors(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes SensorService for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SensorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSensor",
			Handler:    getSensorHandler,
		},
		{
			MethodName: "ListSensors",
			Handler:    listSensorsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lastchanged/v1/sensor.proto",
}

// RegisterSensorServiceServer registers srv on the gRPC server.
func RegisterSensorServiceServer(s grpc.ServiceRegistrar, srv SensorServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getSensorHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(SensorServiceServer).GetSensor(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetSensorMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SensorServiceServer).GetSensor(ctx, req.(*wrapperspb.StringValue)) //nolint:forcetypeassert,errcheck // Guaranteed by dec.
	}

	return interceptor(ctx, in, info, handler)
}

func listSensorsHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(SensorServiceServer).ListSensors(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ListSensorsMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SensorServiceServer).ListSensors(ctx, req.(*emptypb.Empty)) //nolint:forcetypeassert,errcheck // Guaranteed by dec.
	}

	return interceptor(ctx, in, info, handler)
}
