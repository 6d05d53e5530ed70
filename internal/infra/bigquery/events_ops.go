package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// GetEvent retrieves an event by ID. Returns nil if no such event exists.
func (r *BigQueryLedgerRepository) GetEvent(ctx context.Context, eventID string) (*EventRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			event_id,
			title,
			ceremony_date,
			ceremony_end_time,
			created_ts
		FROM %s
		WHERE event_id = @event_id
		LIMIT 1
	`, r.table(eventsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "event_id", Value: eventID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetEvent: reading query: %w", err)
	}

	var row EventRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetEvent: iterating: %w", err)
	}

	return &row, nil
}

// FindMember resolves the membership record linking a user to an event.
// Returns nil when the user is not a member of the event.
func (r *BigQueryLedgerRepository) FindMember(ctx context.Context, userID, eventID string) (*MemberRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			member_id,
			event_id,
			user_id,
			side,
			display_name,
			created_ts
		FROM %s
		WHERE user_id = @user_id
		  AND event_id = @event_id
		LIMIT 1
	`, r.table(membersTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "event_id", Value: eventID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindMember: reading query: %w", err)
	}

	var row MemberRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindMember: iterating: %w", err)
	}

	return &row, nil
}
