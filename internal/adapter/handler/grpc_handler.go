package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

// The booking API speaks JSON over gRPC so the wire types stay plain Go
// structs. Clients must call with grpc.CallContentSubtype(JSONCodecName).
const (
	JSONCodecName      = "json"
	bookingServiceName = "booking.v1.BookingService"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type CreateBookingRequest struct {
	ResourceID     string `json:"resource_id"`
	RequesterID    string `json:"requester_id"`
	UnitCount      int32  `json:"unit_count"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type GetBookingRequest struct {
	BookingKey string `json:"booking_key"`
}

type BookingReply struct {
	Booking *domain.Booking `json:"booking"`
	Created bool            `json:"created"`
	State   string          `json:"state,omitempty"`
}

type BookingServer interface {
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingReply, error)
	GetBooking(ctx context.Context, req *GetBookingRequest) (*BookingReply, error)
}

type GRPCHandler struct {
	bookings BookingAPI
}

func NewGRPCHandler(bookings BookingAPI) *GRPCHandler {
	return &GRPCHandler{bookings: bookings}
}

func (h *GRPCHandler) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingReply, error) {
	res, err := h.bookings.Book(ctx, domain.BookingRequest{
		ResourceID:     req.ResourceID,
		RequesterID:    req.RequesterID,
		UnitCount:      int(req.UnitCount),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &BookingReply{Booking: res.Booking, Created: res.Created, State: string(res.State)}, nil
}

func (h *GRPCHandler) GetBooking(ctx context.Context, req *GetBookingRequest) (*BookingReply, error) {
	b, err := h.bookings.Get(ctx, req.BookingKey)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BookingReply{Booking: b}, nil
}

func toStatus(err error) error {
	code := grpcCode(err)
	_, msg := httpStatus(err)
	return status.Error(code, msg)
}

func RegisterBookingServer(s grpc.ServiceRegistrar, srv BookingServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateBooking", Handler: createBookingHandler},
		{MethodName: "GetBooking", Handler: getBookingHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func createBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateBookingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingServer).CreateBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + bookingServiceName + "/CreateBooking"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingServer).CreateBooking(ctx, req.(*CreateBookingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBookingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingServer).GetBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + bookingServiceName + "/GetBooking"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingServer).GetBooking(ctx, req.(*GetBookingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// BookingClient is the caller side of the booking gRPC API.
type BookingClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingClient(cc grpc.ClientConnInterface) *BookingClient {
	return &BookingClient{cc: cc}
}

func (c *BookingClient) CreateBooking(ctx context.Context, req *CreateBookingRequest, opts ...grpc.CallOption) (*BookingReply, error) {
	out := new(BookingReply)
	opts = append(opts, grpc.CallContentSubtype(JSONCodecName))
	if err := c.cc.Invoke(ctx, "/"+bookingServiceName+"/CreateBooking", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) GetBooking(ctx context.Context, req *GetBookingRequest, opts ...grpc.CallOption) (*BookingReply, error) {
	out := new(BookingReply)
	opts = append(opts, grpc.CallContentSubtype(JSONCodecName))
	if err := c.cc.Invoke(ctx, "/"+bookingServiceName+"/GetBooking", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// UnaryLogger logs every unary call with its status code.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)))
		return resp, err
	}
}
