// Package services implements the client screens as services over the
// backend tables: alerts, patrols, community posts, the member's house,
// patrol statistics, the dashboard and reports.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
)

// Tables is the table access the services need. *backend.Client satisfies it.
type Tables interface {
	From(table string) *backend.Query
}

// Realtime opens change feeds. *backend.RealtimeClient satisfies it.
type Realtime interface {
	Subscribe(ctx context.Context, filter backend.ChangeFilter, handler backend.ChangeHandler) (*backend.Channel, error)
}

const (
	tableOfficers    = "security_officers"
	tableMembers     = "neighborhood_members"
	tableAlerts      = "emergency_alerts"
	tableScans       = "patrol_scans"
	tableCheckpoints = "qr_codes"
	tablePosts       = "community_posts"
	tableComments    = "community_comments"
)

// authorEmbed pulls the author's name through the member row.
const authorEmbed = `
	*,
	neighborhood_members (
		users (
			first_name,
			last_name
		)
	)`

// insertOne writes row into table and returns the stored representation.
func insertOne[T any](ctx context.Context, t Tables, table string, row any) (*T, error) {
	var out []T
	if err := t.From(table).Insert(ctx, row, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert into %s returned no rows", table)
	}
	return &out[0], nil
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
