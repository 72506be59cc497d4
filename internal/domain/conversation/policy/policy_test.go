package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/domain/conversation/service"
)

type stubService struct {
	ConversationService
	conv    *entity.Conversation
	toggled int
}

func (s *stubService) Lookup(_ context.Context, id string) (*entity.Conversation, error) {
	if s.conv == nil || s.conv.ID != id {
		return nil, entity.ErrConversationNotFound
	}
	c := s.conv.Clone()
	return &c, nil
}

func (s *stubService) ToggleArchive(context.Context, *entity.Conversation) (entity.Status, error) {
	s.toggled++
	return entity.StatusArchived, nil
}

func (s *stubService) Detail(_ context.Context, conv *entity.Conversation, userID string) (*entity.Conversation, error) {
	c := conv.ViewFor(userID)
	return &c, nil
}

func (s *stubService) Create(_ context.Context, in service.CreateInput) (*entity.Conversation, error) {
	return &entity.Conversation{ID: "new", Salon: in.Salon, Client: in.Client, Status: entity.StatusActive}, nil
}

func newStub() *stubService {
	return &stubService{conv: &entity.Conversation{
		ID:       "c1",
		Salon:    entity.Party{UserID: "salon"},
		Client:   entity.Party{UserID: "client"},
		Status:   entity.StatusActive,
		Counters: entity.UnreadCounters{Salon: 2, Client: 5},
	}}
}

func TestPolicy_OutsiderSeesNotFound(t *testing.T) {
	svc := newStub()
	p := New(svc)

	_, err := p.Get(context.Background(), "intruder", "c1")
	require.ErrorIs(t, err, entity.ErrConversationNotFound)

	_, err = p.ToggleArchive(context.Background(), "intruder", "c1")
	require.ErrorIs(t, err, entity.ErrConversationNotFound)
	require.Equal(t, 0, svc.toggled)
}

func TestPolicy_ParticipantSeesOwnUnread(t *testing.T) {
	p := New(newStub())

	conv, err := p.Get(context.Background(), "client", "c1")
	require.NoError(t, err)
	require.Equal(t, 5, conv.UnreadCount)

	conv, err = p.Get(context.Background(), "salon", "c1")
	require.NoError(t, err)
	require.Equal(t, 2, conv.UnreadCount)
}

func TestPolicy_CreateRequiresCallerAsParty(t *testing.T) {
	p := New(newStub())

	_, err := p.Create(context.Background(), CreateInput{
		UserID: "someone-else",
		Salon:  entity.Party{UserID: "salon"},
		Client: entity.Party{UserID: "client"},
	})
	require.ErrorIs(t, err, entity.ErrNotParticipant)

	conv, err := p.Create(context.Background(), CreateInput{
		UserID: "salon",
		Salon:  entity.Party{UserID: "salon"},
		Client: entity.Party{UserID: "client"},
	})
	require.NoError(t, err)
	require.Equal(t, entity.StatusActive, conv.Status)
}
