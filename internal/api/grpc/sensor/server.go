package sensor

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
)

// Response field names.
const (
	FieldID         = "id"
	FieldName       = "name"
	FieldEntity     = "entity"
	FieldState      = "state"
	FieldAttributes = "attributes"
	FieldNextCheck  = "next_check"
	FieldSensors    = "sensors"
)

// Info is a read-only view of one running sensor.
type Info struct {
	ID       string
	Name     string
	Entity   string
	Snapshot *domain.Snapshot
	// NextCheck is the armed expiration check, zero when none is armed.
	NextCheck time.Time
}

// Service abstracts the sensor registry the transport layer reads from.
type Service interface {
	Sensor(ctx context.Context, id string) (*Info, bool)
	Sensors(ctx context.Context) []*Info
}

// Server implements SensorServiceServer on top of a Service.
type Server struct {
	// service provides the running sensors.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// GetSensor returns one sensor by unique id.
func (s *Server) GetSensor(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "sensor id is required")
	}

	info, ok := s.service.Sensor(ctx, req.GetValue())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "sensor %q not found", req.GetValue())
	}

	result, err := structpb.NewStruct(toMap(info))
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode sensor")
	}

	return result, nil
}

// ListSensors returns every running sensor.
func (s *Server) ListSensors(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	infos := s.service.Sensors(ctx)

	sensors := make([]any, 0, len(infos))
	for _, info := range infos {
		sensors = append(sensors, toMap(info))
	}

	result, err := structpb.NewStruct(map[string]any{FieldSensors: sensors})
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode sensors")
	}

	return result, nil
}

// toMap converts an Info to the structpb-compatible response shape.
func toMap(info *Info) map[string]any {
	m := map[string]any{
		FieldID:         info.ID,
		FieldName:       info.Name,
		FieldEntity:     info.Entity,
		FieldState:      nil,
		FieldAttributes: map[string]any{},
		FieldNextCheck:  nil,
	}

	if info.Snapshot != nil {
		if info.Snapshot.State != "" {
			m[FieldState] = info.Snapshot.State
		}

		m[FieldAttributes] = info.Snapshot.Attributes.Map()
	}

	if !info.NextCheck.IsZero() {
		m[FieldNextCheck] = domain.FormatTimestamp(info.NextCheck)
	}

	return m
}
