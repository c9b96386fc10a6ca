package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"prichal/internal/domain"
	"prichal/internal/models"
	"prichal/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// EngineServiceName is the gRPC service for read-only engine lookups.
const EngineServiceName = "prichal.booking.v1.BookingEngine"

// BookingEngineServer answers catalog, availability and quote lookups.
// Requests and responses are google.protobuf.Struct documents with the same
// fields as the HTTP JSON bodies.
type BookingEngineServer interface {
	ListResources(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Quote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var bookingEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: EngineServiceName,
	HandlerType: (*BookingEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListResources", Handler: structHandler("ListResources", BookingEngineServer.ListResources)},
		{MethodName: "GetAvailability", Handler: structHandler("GetAvailability", BookingEngineServer.GetAvailability)},
		{MethodName: "Quote", Handler: structHandler("Quote", BookingEngineServer.Quote)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "prichal/booking/v1/engine.proto",
}

// RegisterBookingEngineServer attaches the engine service to s.
func RegisterBookingEngineServer(s grpc.ServiceRegistrar, srv BookingEngineServer) {
	s.RegisterService(&bookingEngineServiceDesc, srv)
}

func structHandler(method string, call func(BookingEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + EngineServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingEngineServer), ctx, req.(*structpb.Struct))
		})
	}
}

type engineServer struct {
	svc Services
}

func newEngineServer(svc Services) *engineServer {
	return &engineServer{svc: svc}
}

func (e *engineServer) ListResources(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body struct {
		IncludeInactive bool `json:"include_inactive"`
	}
	if err := decodeStruct(req, &body); err != nil {
		return nil, grpcError(err)
	}
	resources, err := e.svc.Resources.ListResources(ctx, body.IncludeInactive)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(map[string]any{"resources": resources})
}

func (e *engineServer) GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body struct {
		ResourceID      string `json:"resource_id"`
		Date            string `json:"date"`
		Quantity        int    `json:"quantity"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := decodeStruct(req, &body); err != nil {
		return nil, grpcError(err)
	}
	q := service.SlotQuery{
		ResourceID:      body.ResourceID,
		Date:            strings.TrimSpace(body.Date),
		Quantity:        body.Quantity,
		DurationMinutes: body.DurationMinutes,
	}
	slots, err := e.svc.Slots.GetSlots(ctx, q)
	if err != nil {
		return nil, grpcError(err)
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	return encodeStruct(map[string]any{"resource_id": q.ResourceID, "date": q.Date, "slots": slots})
}

func (e *engineServer) Quote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var q service.QuoteRequest
	if err := decodeStruct(req, &q); err != nil {
		return nil, grpcError(err)
	}
	breakdown, err := e.svc.Pricing.Quote(ctx, q)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(quoteResponse{Pricing: *breakdown, Display: displayPricing(*breakdown)})
}

// decodeStruct maps a Struct onto the HTTP request type; unknown fields are rejected.
func decodeStruct(in *structpb.Struct, dst any) error {
	if in == nil || len(in.GetFields()) == 0 {
		return nil
	}
	raw, err := in.MarshalJSON()
	if err != nil {
		return domain.Invalid("request", "invalid struct: %v", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.Invalid("request", "invalid request: %v", err)
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// grpcError carries the engine error kind as "<CODE>: message", mirroring the HTTP body.
func grpcError(err error) error {
	code := codes.Internal
	switch errorStatus(err) {
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusUnprocessableEntity:
		code = codes.FailedPrecondition
	case http.StatusConflict:
		code = codes.Aborted
	case http.StatusNotFound:
		code = codes.NotFound
	case http.StatusForbidden:
		code = codes.PermissionDenied
	case http.StatusServiceUnavailable:
		code = codes.Unavailable
	}
	message := err.Error()
	if code == codes.Internal {
		message = "internal error"
	}
	return status.Error(code, fmt.Sprintf("%s: %s", domain.Code(err), message))
}
