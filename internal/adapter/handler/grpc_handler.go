package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/reservation/internal/adapter/handler/rpc"
	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/core/service"
)

type GRPCHandler struct {
	bookings BookingAPI
	log      *zap.Logger
}

var _ rpc.BookingServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(bookings BookingAPI, log *zap.Logger) *GRPCHandler {
	return &GRPCHandler{bookings: bookings, log: log}
}

func (h *GRPCHandler) CreateBooking(ctx context.Context, req *rpc.CreateBookingRequest) (*rpc.BookingResponse, error) {
	if !validID(req.MemberId) || !validID(req.InventoryId) {
		return nil, status.Error(codes.InvalidArgument, "Member id and inventory id must be valid identifiers.")
	}

	booking, err := h.bookings.Create(ctx, service.CreateBookingRequest{
		MemberID:       req.MemberId,
		InventoryID:    req.InventoryId,
		ScheduledAt:    req.BookingDateTime,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, h.grpcError("CreateBooking", err)
	}
	return &rpc.BookingResponse{Booking: toRPCBooking(booking)}, nil
}

func (h *GRPCHandler) CancelBooking(ctx context.Context, req *rpc.CancelBookingRequest) (*rpc.BookingResponse, error) {
	if !validID(req.BookingId) {
		return nil, status.Error(codes.InvalidArgument, "Booking id is not valid.")
	}

	booking, err := h.bookings.Cancel(ctx, req.BookingId)
	if err != nil {
		return nil, h.grpcError("CancelBooking", err)
	}
	return &rpc.BookingResponse{Booking: toRPCBooking(booking)}, nil
}

func (h *GRPCHandler) GetBooking(ctx context.Context, req *rpc.GetBookingRequest) (*rpc.BookingResponse, error) {
	if !validID(req.BookingId) {
		return nil, status.Error(codes.InvalidArgument, "Booking id is not valid.")
	}

	booking, err := h.bookings.Get(ctx, req.BookingId)
	if err != nil {
		return nil, h.grpcError("GetBooking", err)
	}
	return &rpc.BookingResponse{Booking: toRPCBooking(booking)}, nil
}

func (h *GRPCHandler) ListBookings(ctx context.Context, _ *rpc.ListBookingsRequest) (*rpc.ListBookingsResponse, error) {
	bookings, err := h.bookings.List(ctx)
	if err != nil {
		return nil, h.grpcError("ListBookings", err)
	}

	out := make([]*rpc.Booking, 0, len(bookings))
	for i := range bookings {
		out = append(out, toRPCBooking(&bookings[i]))
	}
	return &rpc.ListBookingsResponse{Bookings: out}, nil
}

func (h *GRPCHandler) grpcError(method string, err error) error {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.InternalServer("Internal server error.", err)
	}

	code := GRPCCode(derr)
	if code == codes.Internal || code == codes.Unavailable {
		h.log.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(code, derr.Message())
}

// GRPCCode maps a core failure onto a status code.
func GRPCCode(err *domain.Error) codes.Code {
	switch err.Kind() {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindValidationError:
		return codes.FailedPrecondition
	case domain.KindBadRequest:
		return codes.InvalidArgument
	}
	if err.IsRetryable() {
		return codes.Unavailable
	}
	return codes.Internal
}

func toRPCBooking(b *domain.Booking) *rpc.Booking {
	return &rpc.Booking{
		Id:              b.ID,
		MemberId:        b.MemberID,
		InventoryId:     b.InventoryID,
		BookingDateTime: b.ScheduledAt,
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}
