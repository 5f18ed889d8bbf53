package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/backend/backendtest"
	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/common"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

func seedAlerts(srv *backendtest.Server) {
	srv.Seed("emergency_alerts",
		backendtest.Row{"alert_id": "a1", "raised_by_member_id": "m1", "alert_type": "Fire", "status": "resolved",
			"created_at": "2024-12-01T10:00:00Z", "neighborhood_members": author("Ann", "Lee")},
		backendtest.Row{"alert_id": "a2", "raised_by_member_id": "m1", "alert_type": "Break-in", "status": "active",
			"created_at": "2024-12-03T10:00:00Z", "neighborhood_members": author("Ann", "Lee")},
		backendtest.Row{"alert_id": "a3", "raised_by_member_id": "m2", "alert_type": "Noise", "status": "active",
			"created_at": "2024-12-02T10:00:00Z"},
	)
}

func TestAlertList_NewestFirst(t *testing.T) {
	c, srv := setup(t)
	seedAlerts(srv)
	svc := NewAlertService(c, nil, logging.Nop())

	all, err := svc.List(context.Background(), AlertFilterAll)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a2", "a3", "a1"}, []string{all[0].AlertID, all[1].AlertID, all[2].AlertID})
	assert.Equal(t, "Ann Lee", all[0].RaisedBy.Name())
	assert.Equal(t, "Unknown", all[1].RaisedBy.Name())
}

func TestAlertList_FilterByStatus(t *testing.T) {
	c, srv := setup(t)
	seedAlerts(srv)
	svc := NewAlertService(c, nil, logging.Nop())

	active, err := svc.List(context.Background(), AlertFilterActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, a := range active {
		assert.Equal(t, models.AlertStatusActive, a.Status)
	}

	cancelled, err := svc.List(context.Background(), AlertFilterCancelled)
	require.NoError(t, err)
	assert.Empty(t, cancelled)
}

func TestParseAlertFilter(t *testing.T) {
	f, err := ParseAlertFilter(" Resolved ")
	require.NoError(t, err)
	assert.Equal(t, AlertFilterResolved, f)

	f, err = ParseAlertFilter("")
	require.NoError(t, err)
	assert.Equal(t, AlertFilterAll, f)

	_, err = ParseAlertFilter("urgent")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestRaise_Defaults(t *testing.T) {
	c, srv := setup(t)
	svc := NewAlertService(c, nil, logging.Nop())

	a, err := svc.Raise(context.Background(), "m1", "", "  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultAlertType, a.AlertType)
	assert.Equal(t, DefaultAlertDescription, a.DescriptionOr(""))
	assert.Equal(t, models.AlertStatusActive, a.Status)
	assert.NotEmpty(t, a.AlertID)

	rows := srv.Rows("emergency_alerts")
	require.Len(t, rows, 1)
	assert.Equal(t, "m1", rows[0]["raised_by_member_id"])
}

func TestRaise_RequiresMember(t *testing.T) {
	c, _ := setup(t)
	_, err := NewAlertService(c, nil, logging.Nop()).Raise(context.Background(), "", "Fire", "smoke")
	assert.ErrorIs(t, err, common.ErrWrongRole)
}

func TestResolve(t *testing.T) {
	c, srv := setup(t)
	seedAlerts(srv)
	svc := NewAlertService(c, nil, logging.Nop())

	require.NoError(t, svc.Resolve(context.Background(), "a2", "o1"))
	for _, r := range srv.Rows("emergency_alerts") {
		if r["alert_id"] == "a2" {
			assert.Equal(t, "resolved", r["status"])
			assert.Equal(t, "o1", r["resolved_by_officer_id"])
			assert.NotNil(t, r["resolved_at"])
		}
	}
}

func TestResolve_UnknownAlert(t *testing.T) {
	c, _ := setup(t)
	err := NewAlertService(c, nil, logging.Nop()).Resolve(context.Background(), "nope", "o1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func change(t *testing.T, row map[string]any) backend.Change {
	t.Helper()
	raw, err := json.Marshal(row)
	require.NoError(t, err)
	return backend.Change{Type: "INSERT", Schema: "public", Table: "emergency_alerts", Record: raw}
}

func TestWatchNew_NotifiesOnlyActiveAlerts(t *testing.T) {
	rt := &fakeRealtime{}
	n := &fakeNotifier{}
	svc := NewAlertService(nil, rt, logging.Nop())

	var seen []string
	_, err := svc.WatchNew(context.Background(), n, func(a models.EmergencyAlert) { seen = append(seen, a.AlertID) })
	require.NoError(t, err)
	assert.Equal(t, backend.ChangeFilter{Channel: "emergency-alerts-realtime", Event: "INSERT", Schema: "public", Table: "emergency_alerts"}, rt.LastFilter)

	ctx := context.Background()
	rt.LastHandler(ctx, change(t, map[string]any{"alert_id": "x1", "alert_type": "Fire", "status": "active", "description": "smoke at gate"}))
	rt.LastHandler(ctx, change(t, map[string]any{"alert_id": "x2", "alert_type": "Fire", "status": "resolved"}))
	rt.LastHandler(ctx, change(t, map[string]any{"alert_id": "x3", "alert_type": "Noise", "status": "active"}))
	rt.LastHandler(ctx, backend.Change{Record: json.RawMessage(`not json`)})

	require.Len(t, n.sent, 2)
	assert.Equal(t, "New Emergency Alert", n.sent[0].Title)
	assert.Equal(t, "Fire: smoke at gate", n.sent[0].Body)
	assert.Equal(t, "x1", n.sent[0].Data["alert_id"])
	assert.Equal(t, "Noise: No description", n.sent[1].Body)
	assert.Equal(t, []string{"x1", "x3"}, seen)
}

func TestWatchNew_SubscribeError(t *testing.T) {
	rt := &fakeRealtime{Err: errors.New("dial failed")}
	_, err := NewAlertService(nil, rt, logging.Nop()).WatchNew(context.Background(), &fakeNotifier{}, nil)
	assert.ErrorContains(t, err, "dial failed")
}
