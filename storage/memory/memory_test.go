package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/magpie/storage"
	"github.com/jrife/magpie/storage/memory"
)

type event struct {
	area    string
	changes map[string]storage.Change
}

func subscribe(t *testing.T, backend storage.Backend) chan event {
	t.Helper()

	events := make(chan event, 16)

	_, err := backend.Subscribe(func(area string, changes map[string]storage.Change) {
		events <- event{area: area, changes: changes}
	})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return events
}

func waitEvent(t *testing.T, events chan event) event {
	t.Helper()

	select {
	case e := <-events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for an event")
	}

	return event{}
}

func area(t *testing.T, backend storage.Backend, name string) storage.Area {
	t.Helper()

	a, err := backend.Area(name)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return a
}

func TestBackendAreas(t *testing.T) {
	backend := memory.New()
	defer backend.Close()

	expected := []string{storage.AreaLocal, storage.AreaManaged, storage.AreaSync}

	if diff := cmp.Diff(expected, backend.Areas()); diff != "" {
		t.Fatalf("areas mismatch (-want +got):\n%s", diff)
	}

	if _, err := backend.Area("nope"); err != storage.ErrNoSuchArea {
		t.Fatalf("expected ErrNoSuchArea, got %#v", err)
	}
}

func TestAreaSetAndGet(t *testing.T) {
	backend := memory.New()
	defer backend.Close()

	local := area(t, backend, storage.AreaLocal)
	ctx := context.Background()

	if err := local.Set(ctx, map[string]interface{}{"enabled": false, "count": 0}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	testCases := map[string]struct {
		keys   []string
		result map[string]interface{}
	}{
		"present-key": {
			keys:   []string{"count"},
			result: map[string]interface{}{"count": 0},
		},
		"absent-key-omitted": {
			keys:   []string{"count", "missing"},
			result: map[string]interface{}{"count": 0},
		},
		"no-keys": {
			keys:   []string{},
			result: map[string]interface{}{},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			items, err := local.Get(ctx, testCase.keys...)

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if diff := cmp.Diff(testCase.result, items); diff != "" {
				t.Fatalf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}

	all, err := local.GetAll(ctx)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(map[string]interface{}{"enabled": false, "count": 0}, all); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestAreasAreIndependent(t *testing.T) {
	backend := memory.New()
	defer backend.Close()

	ctx := context.Background()
	local := area(t, backend, storage.AreaLocal)
	sync := area(t, backend, storage.AreaSync)

	if err := sync.Set(ctx, map[string]interface{}{"a": 1}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	items, err := local.GetAll(ctx)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(items) != 0 {
		t.Fatalf("expected local area to be empty, got %#v", items)
	}
}

func TestSetPublishesChanges(t *testing.T) {
	backend := memory.New()
	defer backend.Close()

	events := subscribe(t, backend)
	ctx := context.Background()
	local := area(t, backend, storage.AreaLocal)

	if err := local.Set(ctx, map[string]interface{}{"count": 0}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	e := waitEvent(t, events)

	expected := event{
		area: storage.AreaLocal,
		changes: map[string]storage.Change{
			"count": {NewValue: 0, NewExists: true},
		},
	}

	if e.area != expected.area {
		t.Fatalf("expected area %s, got %s", expected.area, e.area)
	}

	if diff := cmp.Diff(expected.changes, e.changes); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}

	if err := local.Set(ctx, map[string]interface{}{"count": 5}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	e = waitEvent(t, events)

	if diff := cmp.Diff(map[string]storage.Change{
		"count": {OldValue: 0, OldExists: true, NewValue: 5, NewExists: true},
	}, e.changes); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestRemovePublishesDeletions(t *testing.T) {
	backend := memory.New()
	defer backend.Close()

	events := subscribe(t, backend)
	ctx := context.Background()
	local := area(t, backend, storage.AreaLocal)

	if err := local.Set(ctx, map[string]interface{}{"a": 1}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	waitEvent(t, events)

	// "missing" was never present so only "a" appears in the event
	if err := local.Remove(ctx, "a", "missing"); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	e := waitEvent(t, events)

	if diff := cmp.Diff(map[string]storage.Change{
		"a": {OldValue: 1, OldExists: true},
	}, e.changes); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}

	items, err := local.GetAll(ctx)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(items) != 0 {
		t.Fatalf("expected area to be empty, got %#v", items)
	}
}

func TestClearPublishesDeletions(t *testing.T) {
	backend := memory.New()
	defer backend.Close()

	events := subscribe(t, backend)
	ctx := context.Background()
	local := area(t, backend, storage.AreaLocal)

	if err := local.Set(ctx, map[string]interface{}{"a": 1, "b": 2}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	waitEvent(t, events)

	if err := local.Clear(ctx); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	e := waitEvent(t, events)

	if diff := cmp.Diff(map[string]storage.Change{
		"a": {OldValue: 1, OldExists: true},
		"b": {OldValue: 2, OldExists: true},
	}, e.changes); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestClosedBackend(t *testing.T) {
	backend := memory.New()
	local := area(t, backend, storage.AreaLocal)

	if err := backend.Close(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	ctx := context.Background()

	if _, err := local.GetAll(ctx); err != storage.ErrClosed {
		t.Fatalf("expected ErrClosed, got %#v", err)
	}

	if err := local.Set(ctx, map[string]interface{}{"a": 1}); err != storage.ErrClosed {
		t.Fatalf("expected ErrClosed, got %#v", err)
	}

	if _, err := backend.Subscribe(func(area string, changes map[string]storage.Change) {}); err != storage.ErrClosed {
		t.Fatalf("expected ErrClosed, got %#v", err)
	}
}
