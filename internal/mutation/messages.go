package mutation

import (
	"context"
	"strings"

	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

// ContactSubmission is what the public contact form sends, plus the request
// metadata recorded with it.
type ContactSubmission struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Subject   *string `json:"subject"`
	Message   string  `json:"message"`
	Phone     *string `json:"phone"`
	Company   *string `json:"company"`
	IPAddress string  `json:"-"`
	UserAgent string  `json:"-"`
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// SubmitContactMessage stores a message from the public form. Messages
// always start unread with normal priority.
func (s *Service) SubmitContactMessage(ctx context.Context, in ContactSubmission) (domain.ContactMessage, error) {
	m := domain.ContactMessage{
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Subject:   in.Subject,
		Message:   strings.TrimSpace(in.Message),
		Phone:     in.Phone,
		Company:   in.Company,
		Priority:  domain.PriorityNormal,
		Source:    domain.SourceWebsite,
		IPAddress: optional(in.IPAddress),
		UserAgent: optional(in.UserAgent),
	}
	if err := m.Validate(); err != nil {
		return domain.ContactMessage{}, err
	}

	saved, err := insert(ctx, s.store, domain.TableContactMessages, m, "replied_at")
	if err != nil {
		return domain.ContactMessage{}, err
	}
	s.mergeMessage(saved, store.EventInsert)
	return saved, nil
}

// MarkMessageRead sets the read flag. Nothing ever clears it.
func (s *Service) MarkMessageRead(ctx context.Context, id string) (domain.ContactMessage, error) {
	var saved domain.ContactMessage
	row, err := s.store.Update(ctx, domain.TableContactMessages, store.Row{"is_read": true}, store.ByID(id))
	if err != nil {
		return saved, err
	}
	if err := store.Decode(row, &saved); err != nil {
		return saved, err
	}
	s.mergeMessage(saved, store.EventUpdate)
	return saved, nil
}

func (s *Service) DeleteMessage(ctx context.Context, id string) error {
	if err := s.remove(ctx, domain.TableContactMessages, id); err != nil {
		return err
	}
	s.mergeMessage(domain.ContactMessage{ID: id}, store.EventDelete)
	return nil
}

// mergeMessage folds a confirmed message into every cached inbox list.
// Lists are newest first; a limited list that loses a row is refetched
// since the row that should take its place is unknown.
func (s *Service) mergeMessage(m domain.ContactMessage, op store.EventType) {
	s.query.Merge(domain.TableContactMessages, func(k query.Key, data any) (any, bool) {
		msgs, ok := data.([]domain.ContactMessage)
		if !ok {
			return nil, false
		}
		f, ok := query.MessageFilterFromKey(k)
		if !ok {
			return nil, false
		}

		out := make([]domain.ContactMessage, 0, len(msgs)+1)
		for _, cur := range msgs {
			if cur.ID != m.ID {
				out = append(out, cur)
				continue
			}
			if op != store.EventDelete && f.Matches(m) {
				out = append(out, m)
			}
		}

		if len(out) < len(msgs) && f.Limit > 0 {
			return nil, false
		}
		if op == store.EventInsert && f.Matches(m) {
			out = append([]domain.ContactMessage{m}, out...)
			if f.Limit > 0 && len(out) > f.Limit {
				out = out[:f.Limit]
			}
		}
		return out, true
	})
}
