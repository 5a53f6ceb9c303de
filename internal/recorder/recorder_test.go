package recorder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/i474232898/crop-prediction/internal/model"
	"github.com/i474232898/crop-prediction/internal/prediction"
	"github.com/i474232898/crop-prediction/internal/weather"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open recorder: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Fatalf("close recorder: %v", err)
		}
	})
	return r
}

func TestRecordAndRecent(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	events := []prediction.Event{
		{
			ID:        "a",
			Kind:      prediction.KindYield,
			Location:  weather.Coordinate{Lat: -6.2, Lon: 106.8},
			Request:   map[string]any{"area": 10},
			Features:  model.Row{model.Cat("Padi"), model.Num(21.5)},
			Result:    prediction.YieldResult{PredictedYield: 42, Units: prediction.YieldUnits},
			CreatedAt: base,
		},
		{
			ID:        "b",
			Kind:      prediction.KindRecommendation,
			Location:  weather.Coordinate{Lat: -7.25, Lon: 112.75},
			Request:   map[string]any{"sun_exposure": "Full Sun"},
			Features:  model.Row{model.Num(25), model.Cat("Full Sun")},
			Result:    prediction.RecommendResult{Plant: "Cabai"},
			CreatedAt: base.Add(time.Minute),
		},
	}
	for _, ev := range events {
		if err := r.Handle(ctx, ev); err != nil {
			t.Fatalf("handle %s: %v", ev.ID, err)
		}
	}

	recs, err := r.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "b" || recs[1].ID != "a" {
		t.Fatalf("expected newest first, got %s, %s", recs[0].ID, recs[1].ID)
	}
	if !recs[0].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("created_at = %v", recs[0].CreatedAt)
	}
	if recs[1].Lat != -6.2 || recs[1].Kind != prediction.KindYield {
		t.Errorf("unexpected record %+v", recs[1])
	}

	var feats []any
	if err := json.Unmarshal(recs[1].Features, &feats); err != nil {
		t.Fatalf("features json: %v", err)
	}
	if len(feats) != 2 || feats[0] != "Padi" || feats[1] != 21.5 {
		t.Errorf("features = %v", feats)
	}

	var res prediction.RecommendResult
	if err := json.Unmarshal(recs[0].Result, &res); err != nil || res.Plant != "Cabai" {
		t.Errorf("result = %s (%v)", recs[0].Result, err)
	}
}

func TestRecentLimit(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"x", "y", "z"} {
		ev := prediction.Event{
			ID:        id,
			Kind:      prediction.KindYield,
			Result:    prediction.YieldResult{},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := r.Handle(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	recs, err := r.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "z" || recs[1].ID != "y" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	r := openTestRecorder(t)
	ev := prediction.Event{ID: "dup", Kind: prediction.KindYield, CreatedAt: time.Now()}
	if err := r.Handle(context.Background(), ev); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := r.Handle(context.Background(), ev); err == nil {
		t.Fatal("expected primary key violation on second insert")
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
