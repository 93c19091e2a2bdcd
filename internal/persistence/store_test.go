package persistence

import (
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/uiflow/pkg/api"
)

type samplePayload struct {
	Msg string
	N   int
}

func init() {
	gob.Register(samplePayload{})
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	// A :memory: database is per connection.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

type storeFactory struct {
	name     string
	runs     func(t *testing.T) RunStore
	attempts func(t *testing.T) AttemptStore
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{
			name:     "in-memory",
			runs:     func(t *testing.T) RunStore { return NewInMemoryStore() },
			attempts: func(t *testing.T) AttemptStore { return NewInMemoryStore() },
		},
		{
			name: "sqlite",
			runs: func(t *testing.T) RunStore {
				s, err := NewSQLiteRunStore(openTestDB(t))
				if err != nil {
					t.Fatalf("NewSQLiteRunStore failed: %v", err)
				}
				return s
			},
			attempts: func(t *testing.T) AttemptStore {
				s, err := NewSQLiteAttemptStore(openTestDB(t))
				if err != nil {
					t.Fatalf("NewSQLiteAttemptStore failed: %v", err)
				}
				return s
			},
		},
	}
}

func TestRunStore_SaveGetUpdate(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.runs(t)
			started := time.Unix(1700000000, 0)

			run := &api.FlowRun{
				ID:          "run-1",
				Name:        "install-app",
				Status:      api.StatusRunning,
				Input:       "Acme Connector",
				StepResults: make(map[int]any),
				StartedAt:   started,
			}
			if err := store.SaveRun(run); err != nil {
				t.Fatalf("SaveRun failed: %v", err)
			}

			got, err := store.GetRun("run-1")
			if err != nil {
				t.Fatalf("GetRun failed: %v", err)
			}
			if got.Name != run.Name || got.Status != api.StatusRunning || got.Input != "Acme Connector" {
				t.Fatalf("unexpected run: %+v", got)
			}
			if !got.StartedAt.Equal(started) || !got.FinishedAt.IsZero() {
				t.Fatalf("unexpected timestamps: %v / %v", got.StartedAt, got.FinishedAt)
			}

			run.Status = api.StatusFailed
			run.CurrentStep = 1
			run.StepResults[0] = samplePayload{Msg: "opened", N: 1}
			run.Err = errors.New("toggle did not stabilize")
			run.FinishedAt = started.Add(time.Minute)
			if err := store.UpdateRun(run); err != nil {
				t.Fatalf("UpdateRun failed: %v", err)
			}

			got, err = store.GetRun("run-1")
			if err != nil {
				t.Fatalf("GetRun after update failed: %v", err)
			}
			if got.Status != api.StatusFailed || got.CurrentStep != 1 {
				t.Fatalf("unexpected run after update: %+v", got)
			}
			if got.Err == nil || got.Err.Error() != "toggle did not stabilize" {
				t.Fatalf("unexpected Err: %v", got.Err)
			}
			payload, ok := got.StepResults[0].(samplePayload)
			if !ok || payload.Msg != "opened" || payload.N != 1 {
				t.Fatalf("unexpected step result: %#v", got.StepResults[0])
			}
			if !got.FinishedAt.Equal(started.Add(time.Minute)) {
				t.Fatalf("FinishedAt=%v", got.FinishedAt)
			}
		})
	}
}

func TestRunStore_NotFound(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.runs(t)

			if _, err := store.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound, got %v", err)
			}
			err := store.UpdateRun(&api.FlowRun{ID: "missing", Name: "x", Status: api.StatusFailed})
			if !errors.Is(err, ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound on update, got %v", err)
			}
		})
	}
}

func TestRunStore_ListRunsFilterAndOrder(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.runs(t)
			base := time.Unix(1700000000, 0)

			runs := []*api.FlowRun{
				{ID: "a-1", Name: "install", Status: api.StatusCompleted, StartedAt: base},
				{ID: "a-2", Name: "install", Status: api.StatusCompleted, StartedAt: base.Add(2 * time.Second)},
				{ID: "b-1", Name: "provision", Status: api.StatusFailed, StartedAt: base.Add(time.Second)},
			}
			for _, r := range runs {
				r.StepResults = make(map[int]any)
				if err := store.SaveRun(r); err != nil {
					t.Fatalf("SaveRun(%q) failed: %v", r.ID, err)
				}
			}

			all, err := store.ListRuns(RunFilter{})
			if err != nil {
				t.Fatalf("ListRuns failed: %v", err)
			}
			if len(all) != 3 || all[0].ID != "a-2" || all[1].ID != "b-1" || all[2].ID != "a-1" {
				t.Fatalf("expected newest first, got %v", runIDs(all))
			}

			onlyInstall, _ := store.ListRuns(RunFilter{FlowName: "install"})
			if len(onlyInstall) != 2 {
				t.Fatalf("expected 2 install runs, got %v", runIDs(onlyInstall))
			}

			failed, _ := store.ListRuns(RunFilter{Status: api.StatusFailed})
			if len(failed) != 1 || failed[0].ID != "b-1" {
				t.Fatalf("expected only b-1, got %v", runIDs(failed))
			}

			latest, _ := store.ListRuns(RunFilter{Limit: 1})
			if len(latest) != 1 || latest[0].ID != "a-2" {
				t.Fatalf("expected only a-2, got %v", runIDs(latest))
			}
		})
	}
}

func TestAttemptStore_AppendAndList(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.attempts(t)
			ctx := context.Background()
			at := time.Unix(1700000000, 0)

			events := []api.AttemptEvent{
				{RunID: "r-1", Step: 0, Label: "open", Attempt: 1, Outcome: api.AttemptFailed, Error: "not found", Elapsed: time.Second, At: at, TimedOut: true},
				{RunID: "r-1", Step: 0, Label: "open", Attempt: 2, Outcome: api.AttemptSucceeded, Elapsed: 2 * time.Second, At: at.Add(3 * time.Second)},
				{RunID: "r-2", Step: 1, Label: "save", Attempt: 1, Outcome: api.AttemptSucceeded, At: at},
			}
			for _, ev := range events {
				if err := store.AppendAttempt(ctx, ev); err != nil {
					t.Fatalf("AppendAttempt failed: %v", err)
				}
			}

			got, err := store.ListAttempts(ctx, "r-1")
			if err != nil {
				t.Fatalf("ListAttempts failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 attempts, got %d", len(got))
			}
			first := got[0]
			if first.Attempt != 1 || first.Outcome != api.AttemptFailed || first.Error != "not found" ||
				first.Elapsed != time.Second || !first.TimedOut || !first.At.Equal(at) {
				t.Fatalf("unexpected first attempt: %+v", first)
			}
			if got[1].Attempt != 2 || got[1].Outcome != api.AttemptSucceeded {
				t.Fatalf("unexpected second attempt: %+v", got[1])
			}

			none, err := store.ListAttempts(ctx, "missing")
			if err != nil || len(none) != 0 {
				t.Fatalf("expected no attempts, got %v, %v", none, err)
			}
		})
	}
}

func TestNoopAttemptStore(t *testing.T) {
	var s AttemptStore = NoopAttemptStore{}
	if err := s.AppendAttempt(context.Background(), api.AttemptEvent{RunID: "x"}); err != nil {
		t.Fatalf("AppendAttempt: %v", err)
	}
	if got, _ := s.ListAttempts(context.Background(), "x"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func runIDs(runs []*api.FlowRun) []string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}
