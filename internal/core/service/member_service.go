package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/port"
)

type CreateMemberInput struct {
	Name    string
	Surname string
}

// MemberService is the member ledger. It owns the booking counter.
type MemberService struct {
	repo port.MemberRepository
	log  *zap.Logger
	now  func() time.Time
}

func NewMemberService(repo port.MemberRepository, log *zap.Logger) *MemberService {
	return &MemberService{repo: repo, log: log, now: time.Now}
}

func (s *MemberService) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	member, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, storeErr("Failed to load member.", err)
	}
	if member == nil {
		return nil, domain.NotFound("Member not found.")
	}
	return member, nil
}

func (s *MemberService) List(ctx context.Context) ([]domain.Member, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return nil, storeErr("Failed to list members.", err)
	}
	return members, nil
}

func (s *MemberService) Create(ctx context.Context, in CreateMemberInput) (*domain.Member, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.BadRequest("Member name is required.")
	}

	member := domain.Member{
		ID:         uuid.NewString(),
		Name:       name,
		Surname:    strings.TrimSpace(in.Surname),
		DateJoined: s.now().UTC(),
	}
	if err := s.repo.InsertMember(ctx, member); err != nil {
		return nil, storeErr("Failed to create member.", err)
	}

	s.log.Info("member created", zap.String("member_id", member.ID))
	return &member, nil
}

// BulkCreate persists pre-validated members as one batch. IDs and join
// dates are filled in when missing.
func (s *MemberService) BulkCreate(ctx context.Context, members []domain.Member) ([]domain.Member, error) {
	if len(members) == 0 {
		return nil, domain.BadRequest("No records found in the CSV file.")
	}

	now := s.now().UTC()
	batch := make([]domain.Member, len(members))
	for i, member := range members {
		if member.BookingCount < 0 || member.BookingCount > domain.MaxActiveBookings {
			return nil, domain.ValidationError("Member booking count must be between 0 and 2.")
		}
		if member.ID == "" {
			member.ID = uuid.NewString()
		}
		if member.DateJoined.IsZero() {
			member.DateJoined = now
		}
		batch[i] = member
	}

	if err := s.repo.BulkInsertMembers(ctx, batch); err != nil {
		return nil, storeErr("Failed to import members.", err)
	}

	s.log.Info("members imported", zap.Int("count", len(batch)))
	return batch, nil
}

// UpdateBookingCount re-reads the member and overwrites its booking count
// with count. The write only lands if the counter still holds the value read.
func (s *MemberService) UpdateBookingCount(ctx context.Context, id string, count int) (*domain.Member, error) {
	if count < 0 {
		return nil, domain.ValidationError("Member booking count cannot be negative.")
	}

	member, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetMemberBookingCount(ctx, id, member.BookingCount, count); err != nil {
		return nil, counterWriteErr("member", err)
	}

	member.BookingCount = count
	return member, nil
}
