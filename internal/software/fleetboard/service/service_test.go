package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
)

type txlessUoW struct{}

func (txlessUoW) WithinTx(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

type fakeFleet struct {
	open    map[navigation.State]int
	started int
	ended   map[navigation.State]int
	records []navigation.SessionRecord

	gotFrom, gotTo      time.Time
	gotOffset, gotLimit int
}

func (f *fakeFleet) CountOpenByState(context.Context) (map[navigation.State]int, error) {
	return f.open, nil
}

func (f *fakeFleet) CountStartedBetween(_ context.Context, from, to time.Time) (int, error) {
	f.gotFrom, f.gotTo = from, to
	return f.started, nil
}

func (f *fakeFleet) CountEndedByStateBetween(context.Context, time.Time, time.Time) (map[navigation.State]int, error) {
	return f.ended, nil
}

func (f *fakeFleet) ListOpen(_ context.Context, offset, limit int) ([]navigation.SessionRecord, error) {
	f.gotOffset, f.gotLimit = offset, limit
	if offset >= len(f.records) {
		return nil, nil
	}
	return f.records[offset:min(offset+limit, len(f.records))], nil
}

func (f *fakeFleet) GetOpenForTechnician(_ context.Context, id string) (*navigation.SessionRecord, error) {
	for i := range f.records {
		if f.records[i].TechnicianID == id {
			return &f.records[i], nil
		}
	}
	return nil, navigation.ErrNoSession
}

type fakeLive map[string]ports.NavigationView

func (l fakeLive) GetSnapshot(_ context.Context, id string) (ports.NavigationView, error) {
	v, ok := l[id]
	if !ok {
		return ports.NavigationView{}, navigation.ErrNoSession
	}
	return v, nil
}

func strptr(s string) *string { return &s }

func TestGetOverview(t *testing.T) {
	fleet := &fakeFleet{
		open:    map[navigation.State]int{navigation.StateNavigating: 3, navigation.StateResolving: 1},
		started: 9,
		ended: map[navigation.State]int{
			navigation.StateArrived:   3,
			navigation.StateCancelled: 2,
			navigation.StateError:     1,
		},
	}
	svc := NewFleetService(txlessUoW{}, fleet, nil).(*fleetService)
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC) }

	res, err := svc.GetOverview(context.Background())
	if err != nil {
		t.Fatalf("GetOverview: %v", err)
	}
	if res.Open.Total != 4 || res.Open.ByState["NAVIGATING"] != 3 {
		t.Fatalf("open = %+v", res.Open)
	}
	if res.Today.Started != 9 || res.Today.Arrived != 3 || res.Today.Failed != 1 || res.Today.CompletionRate != 0.5 {
		t.Fatalf("today = %+v", res.Today)
	}
	if !fleet.gotFrom.Equal(time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)) || fleet.gotTo.Sub(fleet.gotFrom) != 24*time.Hour {
		t.Fatalf("day window = %v..%v", fleet.gotFrom, fleet.gotTo)
	}
}

func TestGetOpenSessionsPagesAndAttachesLiveView(t *testing.T) {
	started := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	fleet := &fakeFleet{
		open: map[navigation.State]int{navigation.StateNavigating: 3},
		records: []navigation.SessionRecord{
			{ID: "s-1", TechnicianID: "tech-1", State: navigation.StateNavigating, JobID: strptr("job-1"), StartedAt: started},
			{ID: "s-2", TechnicianID: "tech-2", State: navigation.StateResolving, StartedAt: started},
			{ID: "s-3", TechnicianID: "tech-3", State: navigation.StateNavigating, StartedAt: started},
		},
	}
	live := fakeLive{
		"tech-2": {SessionID: "s-2", State: "NAVIGATING", StepIndex: 1},
		"tech-3": {SessionID: "s-other", State: "NAVIGATING"},
	}
	svc := NewFleetService(txlessUoW{}, fleet, live)

	res, err := svc.GetOpenSessions(context.Background(), "1", "2")
	if err != nil {
		t.Fatalf("GetOpenSessions: %v", err)
	}
	if res.TotalCount != 3 || res.Page != 1 || res.PageSize != 2 || len(res.Sessions) != 2 {
		t.Fatalf("page 1 = %+v", res)
	}
	if res.Sessions[0].JobID != "job-1" || res.Sessions[0].Live != nil {
		t.Fatalf("row 0 = %+v", res.Sessions[0])
	}
	if res.Sessions[1].Live == nil || res.Sessions[1].State != "NAVIGATING" {
		t.Fatalf("row 1 should carry live view: %+v", res.Sessions[1])
	}

	res, err = svc.GetOpenSessions(context.Background(), "2", "2")
	if err != nil {
		t.Fatalf("GetOpenSessions page 2: %v", err)
	}
	if fleet.gotOffset != 2 || len(res.Sessions) != 1 || res.Sessions[0].Live != nil {
		t.Fatalf("page 2 = %+v (offset %d)", res, fleet.gotOffset)
	}

	if _, err := svc.GetOpenSessions(context.Background(), "x", "5000"); err != nil || fleet.gotLimit != maxPageSize {
		t.Fatalf("page size clamp: limit=%d err=%v", fleet.gotLimit, err)
	}
}

func TestGetTechnicianSession(t *testing.T) {
	fleet := &fakeFleet{records: []navigation.SessionRecord{
		{ID: "s-1", TechnicianID: "tech-1", State: navigation.StateNavigating, LastErrorCode: strptr("ROUTE_FAILURE")},
	}}
	svc := NewFleetService(txlessUoW{}, fleet, nil)

	row, err := svc.GetTechnicianSession(context.Background(), " tech-1 ")
	if err != nil || row.SessionID != "s-1" || row.LastErrorCode != "ROUTE_FAILURE" {
		t.Fatalf("row = %+v err = %v", row, err)
	}
	if _, err := svc.GetTechnicianSession(context.Background(), "tech-9"); !errors.Is(err, navigation.ErrNoSession) {
		t.Fatalf("missing technician: %v", err)
	}
}
