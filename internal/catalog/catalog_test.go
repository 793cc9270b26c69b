package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/plotark/plotark/internal/generator"
)

type stubLister struct {
	calls  int
	models []generator.ModelInfo
	err    error
}

func (s *stubLister) ListModels(ctx context.Context) ([]generator.ModelInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.models, nil
}

func TestNew_NilLister(t *testing.T) {
	if c := New(nil); c != nil {
		t.Fatal("expected nil catalog for nil lister")
	}
	var c *Catalog
	if models := c.Models(context.Background()); models != nil {
		t.Fatal("nil catalog must return no models")
	}
}

func TestModels_ColdSnapshotSyncsOnDemand(t *testing.T) {
	lister := &stubLister{models: []generator.ModelInfo{{Name: "models/gemini-1.5-flash-latest"}}}
	c := New(lister)

	models := c.Models(context.Background())
	if len(models) != 1 || models[0].Name != "models/gemini-1.5-flash-latest" {
		t.Fatalf("unexpected models: %v", models)
	}
	if lister.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", lister.calls)
	}

	// A warm snapshot serves without another upstream call.
	if models = c.Models(context.Background()); len(models) != 1 {
		t.Fatalf("warm snapshot lost models: %v", models)
	}
	if lister.calls != 1 {
		t.Fatalf("warm read hit upstream, calls=%d", lister.calls)
	}
}

func TestSyncOnce_ErrorKeepsSnapshot(t *testing.T) {
	lister := &stubLister{models: []generator.ModelInfo{{Name: "models/a"}}}
	c := New(lister)
	if errSync := c.SyncOnce(context.Background()); errSync != nil {
		t.Fatalf("sync: %v", errSync)
	}
	before := c.UpdatedAt()
	if before.IsZero() {
		t.Fatal("expected non-zero snapshot time after sync")
	}

	lister.err = fmt.Errorf("upstream down")
	if errSync := c.SyncOnce(context.Background()); errSync == nil {
		t.Fatal("expected sync error")
	}
	if got := c.Models(context.Background()); len(got) != 1 || got[0].Name != "models/a" {
		t.Fatalf("failed sync must keep previous snapshot, got %v", got)
	}
	if !c.UpdatedAt().Equal(before) {
		t.Fatal("failed sync must not bump the snapshot time")
	}
}

func TestSyncOnce_RefreshBumpsTime(t *testing.T) {
	lister := &stubLister{}
	c := New(lister)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	if errSync := c.SyncOnce(context.Background()); errSync != nil {
		t.Fatalf("sync: %v", errSync)
	}
	if !c.UpdatedAt().Equal(base) {
		t.Fatalf("expected snapshot time %s, got %s", base, c.UpdatedAt())
	}
}
