package reconcile

import (
	"context"
	"fmt"

	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
)

// authorize resolves the caller to a member of the event and checks that the
// scrape account belongs to that member. The account row is returned so the
// pipeline does not refetch it.
func (s *Service) authorize(ctx context.Context, userID, eventID, accountID string) (*bq.MemberRow, *bq.ScrapeAccountRow, error) {
	if userID == "" {
		return nil, nil, ErrUnauthorized
	}

	member, err := s.repo.FindMember(ctx, userID, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding member: %w", err)
	}
	if member == nil {
		return nil, nil, ErrForbidden
	}

	account, err := s.repo.GetScrapeAccount(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting scrape account: %w", err)
	}
	if account == nil || account.EventID != eventID || account.MemberID != member.MemberID {
		return nil, nil, ErrForbidden
	}

	return member, account, nil
}
