package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/core/service"
	"github.com/rl1809/reservation/internal/platform/observability"
)

type BookingAPI interface {
	Create(ctx context.Context, req service.CreateBookingRequest) (*domain.Booking, error)
	Cancel(ctx context.Context, bookingID string) (*domain.Booking, error)
	Get(ctx context.Context, bookingID string) (*domain.Booking, error)
	List(ctx context.Context) ([]domain.Booking, error)
}

type MemberAPI interface {
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	List(ctx context.Context) ([]domain.Member, error)
	Create(ctx context.Context, in service.CreateMemberInput) (*domain.Member, error)
	BulkCreate(ctx context.Context, members []domain.Member) ([]domain.Member, error)
}

type InventoryAPI interface {
	GetByID(ctx context.Context, id string) (*domain.Inventory, error)
	List(ctx context.Context) ([]domain.Inventory, error)
	Create(ctx context.Context, in service.CreateInventoryInput) (*domain.Inventory, error)
	BulkCreate(ctx context.Context, items []domain.Inventory) ([]domain.Inventory, error)
}

type HTTPHandler struct {
	bookings  BookingAPI
	members   MemberAPI
	inventory InventoryAPI
	log       *zap.Logger
}

type CreateBookingHTTPRequest struct {
	MemberID        string    `json:"memberId" binding:"required"`
	InventoryID     string    `json:"inventoryId" binding:"required"`
	BookingDateTime time.Time `json:"bookingDateTime"`
}

type ErrorHTTPResponse struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

func NewHTTPHandler(bookings BookingAPI, members MemberAPI, inventory InventoryAPI, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{bookings: bookings, members: members, inventory: inventory, log: log}
}

// Router wires every route with tracing and request metrics.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), observability.TracingMiddleware(), observability.MetricsMiddleware)

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	book := r.Group("/api/book")
	book.GET("", h.ListBookings)
	book.POST("", h.CreateBooking)
	book.GET("/:id", h.GetBooking)
	book.PUT("/cancel/:id", h.CancelBooking)

	member := r.Group("/api/member")
	member.GET("", h.ListMembers)
	member.POST("", h.CreateMember)
	member.GET("/:id", h.GetMember)
	member.POST("/upload", h.UploadMembers)

	inventory := r.Group("/api/inventory")
	inventory.GET("", h.ListInventory)
	inventory.POST("", h.CreateInventory)
	inventory.GET("/:id", h.GetInventory)
	inventory.POST("/upload", h.UploadInventory)

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err, "bookingDateTime"))
		return
	}
	if !validID(req.MemberID) || !validID(req.InventoryID) {
		h.writeError(c, domain.BadRequest("Member id and inventory id must be valid identifiers."))
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), service.CreateBookingRequest{
		MemberID:       req.MemberID,
		InventoryID:    req.InventoryID,
		ScheduledAt:    req.BookingDateTime,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *HTTPHandler) CancelBooking(c *gin.Context) {
	id, ok := h.pathID(c, "Booking id is not valid.")
	if !ok {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *HTTPHandler) GetBooking(c *gin.Context) {
	id, ok := h.pathID(c, "Booking id is not valid.")
	if !ok {
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *HTTPHandler) ListBookings(c *gin.Context) {
	bookings, err := h.bookings.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *HTTPHandler) pathID(c *gin.Context, message string) (string, bool) {
	id := c.Param("id")
	if !validID(id) {
		h.writeError(c, domain.BadRequest(message))
		return "", false
	}
	return id, true
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.InternalServer("Internal server error.", err)
	}

	status := HTTPStatus(derr)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorHTTPResponse{Kind: derr.Kind(), Message: derr.Message()})
}

// HTTPStatus maps a core failure onto a response code.
func HTTPStatus(err *domain.Error) int {
	switch err.Kind() {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBadRequest, domain.KindValidationError:
		return http.StatusBadRequest
	}
	if err.IsRetryable() {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// bindError names the part of the body that could not be bound. dateField
// is the request's timestamp field, if it has one.
func bindError(err error, dateField string) error {
	var (
		timeErr  *time.ParseError
		typeErr  *json.UnmarshalTypeError
		fieldErr validator.ValidationErrors
	)
	switch {
	case errors.Is(err, io.EOF):
		return domain.BadRequest("Request is null or empty.")
	case errors.As(err, &timeErr), strings.HasPrefix(err.Error(), "Time.UnmarshalJSON"):
		if dateField == "" {
			dateField = "Date field"
		}
		return domain.BadRequest(dateField + " must be an RFC 3339 timestamp, e.g. 2030-01-01T10:00:00Z.")
	case errors.As(err, &typeErr):
		return domain.BadRequest(fmt.Sprintf("Field %s has an invalid type.", typeErr.Field))
	case errors.As(err, &fieldErr):
		names := make([]string, 0, len(fieldErr))
		for _, fe := range fieldErr {
			names = append(names, jsonName(fe.Field()))
		}
		return domain.BadRequest(fmt.Sprintf("Missing required fields: %s.", strings.Join(names, ", ")))
	}
	return domain.BadRequest("Request body is not valid JSON.")
}

// jsonName turns a request struct field into its body key ("MemberID" -> "memberId").
func jsonName(field string) string {
	if field == "" {
		return field
	}
	if strings.HasSuffix(field, "ID") {
		field = strings.TrimSuffix(field, "ID") + "Id"
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
