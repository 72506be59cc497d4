package dao

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
)

// fakeRow assigns values positionally, the way pgx scans nullable columns
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r.values))
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case **time.Time:
			if v == nil {
				*d = nil
			} else {
				t := v.(time.Time)
				*d = &t
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

func TestScanUnreadSummary(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	s, err := scanUnreadSummary(fakeRow{values: []any{
		"c1", "Ana", "Lima", "", "Sleeve", "see you friday", at, 3,
	}})
	require.NoError(t, err)
	require.Equal(t, entity.UnreadConversationSummary{
		ConversationID:  "c1",
		ClientFirstName: "Ana",
		ClientLastName:  "Lima",
		Subject:         "Sleeve",
		LastMessage:     "see you friday",
		LastMessageAt:   at,
		UnreadCount:     3,
	}, s)
}

func TestScanUnreadSummary_NullLastMessage(t *testing.T) {
	s, err := scanUnreadSummary(fakeRow{values: []any{
		"c2", "Bo", "", "", "", nil, nil, 1,
	}})
	require.NoError(t, err)
	require.Empty(t, s.LastMessage)
	require.True(t, s.LastMessageAt.IsZero())
	require.Equal(t, 1, s.UnreadCount)
}

func TestScanUnreadSummary_WrapsScanError(t *testing.T) {
	boom := errors.New("conn reset")
	_, err := scanUnreadSummary(fakeRow{err: boom})
	require.ErrorIs(t, err, boom)
}
