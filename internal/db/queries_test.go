package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// stringPtr returns a pointer to the given string.
func stringPtr(s string) *string {
	return &s
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedAutomation(t *testing.T, db *sql.DB, id, component string, products ...string) {
	t.Helper()
	a := &Automation{
		ID:        id,
		Name:      "Automation " + id,
		Component: component,
		Products:  products,
		Options:   []Option{{Name: "region", Control: "selectbox", Choices: []string{"eu10", "us10"}}},
	}
	if err := PutAutomation(db, a); err != nil {
		t.Fatalf("PutAutomation failed: %v", err)
	}
}

// =============================================================================
// Pulses
// =============================================================================

func TestGetPulse_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetPulse(db, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestUpsertPulse_CreatesAndStamps(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 3, 12, 30, 45, 0, time.FixedZone("CET", 3600))

	got, err := UpsertPulse(db, "c1", &pulse.Record{Symptom: stringPtr("<p>Crash</p>")}, "INT_ISE2SN", now)
	if err != nil {
		t.Fatalf("UpsertPulse failed: %v", err)
	}
	if got.UpdatedOn != "2026-03-03 11:30:45" {
		t.Errorf("UpdatedOn = %q, want UTC timestamp", got.UpdatedOn)
	}
	if got.UpdatedBy != "INT_ISE2SN" {
		t.Errorf("UpdatedBy = %q", got.UpdatedBy)
	}

	stored, err := GetPulse(db, "c1")
	if err != nil {
		t.Fatalf("GetPulse failed: %v", err)
	}
	if stored.Symptom == nil || *stored.Symptom != "<p>Crash</p>" {
		t.Errorf("Symptom = %v", stored.Symptom)
	}
	if stored.Environment != nil {
		t.Errorf("Environment = %v, want nil", *stored.Environment)
	}
}

func TestUpsertPulse_MergesPartialUpdate(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	if _, err := UpsertPulse(db, "c1", &pulse.Record{
		Symptom: stringPtr("<p>Crash</p>"),
		Cause:   stringPtr("<p>Disk</p>"),
	}, "I1", now); err != nil {
		t.Fatalf("first UpsertPulse failed: %v", err)
	}
	got, err := UpsertPulse(db, "c1", &pulse.Record{Cause: stringPtr("<p>Memory</p>")}, "I2", now)
	if err != nil {
		t.Fatalf("second UpsertPulse failed: %v", err)
	}

	if *got.Symptom != "<p>Crash</p>" {
		t.Errorf("Symptom = %q, want kept", *got.Symptom)
	}
	if *got.Cause != "<p>Memory</p>" {
		t.Errorf("Cause = %q, want updated", *got.Cause)
	}
	if got.UpdatedBy != "I2" {
		t.Errorf("UpdatedBy = %q, want I2", got.UpdatedBy)
	}
}

func TestPutPulse_KeepsTimestamps(t *testing.T) {
	db := openTestDB(t)

	r := &pulse.Record{Symptom: stringPtr("<p>x</p>"), UpdatedOn: "2020-01-01 00:00:00", UpdatedBy: "I9"}
	if err := PutPulse(db, "c9", r); err != nil {
		t.Fatalf("PutPulse failed: %v", err)
	}
	got, err := GetPulse(db, "c9")
	if err != nil {
		t.Fatalf("GetPulse failed: %v", err)
	}
	if got.UpdatedOn != "2020-01-01 00:00:00" || got.UpdatedBy != "I9" {
		t.Errorf("got %q by %q", got.UpdatedOn, got.UpdatedBy)
	}
}

// =============================================================================
// Automations
// =============================================================================

func TestPutAndGetAutomation(t *testing.T) {
	db := openTestDB(t)
	seedAutomation(t, db, "a1", "BC-DB", "HANA")

	got, err := GetAutomation(db, "a1")
	if err != nil {
		t.Fatalf("GetAutomation failed: %v", err)
	}
	if got.Component != "BC-DB" || len(got.Products) != 1 || got.Products[0] != "HANA" {
		t.Errorf("unexpected automation: %+v", got)
	}
	if len(got.Options) != 1 || got.Options[0].Name != "region" || len(got.Options[0].Choices) != 2 {
		t.Errorf("options not round-tripped: %+v", got.Options)
	}

	_, err = GetAutomation(db, "nope")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestListAutomations_ProductFilter(t *testing.T) {
	db := openTestDB(t)
	seedAutomation(t, db, "a1", "BC-DB", "HANA")
	seedAutomation(t, db, "a2", "BC-DB")
	seedAutomation(t, db, "a3", "BC-DB", "ASE")
	seedAutomation(t, db, "a4", "BC-OTHER")

	all, err := ListAutomations(db, "BC-DB", "")
	if err != nil {
		t.Fatalf("ListAutomations failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3", len(all))
	}

	hana, err := ListAutomations(db, "BC-DB", "hana")
	if err != nil {
		t.Fatalf("ListAutomations failed: %v", err)
	}
	if len(hana) != 2 || hana[0].ID != "a1" || hana[1].ID != "a2" {
		t.Errorf("unexpected filtered list: %+v", hana)
	}

	none, err := ListAutomations(db, "BC-NONE", "")
	if err != nil {
		t.Fatalf("ListAutomations failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil list, got %v", none)
	}
}

// =============================================================================
// Runs and feedback
// =============================================================================

func TestInsertRun_UnknownAutomation(t *testing.T) {
	db := openTestDB(t)

	err := InsertRun(db, &Run{WorkflowID: "w1", AutomationID: "ghost", IncidentNo: "INC1", Status: "RUNNING", StartedTS: "2026-01-01T00:00:00Z"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	seedAutomation(t, db, "a1", "BC-DB")

	run := &Run{
		WorkflowID:   "w1",
		AutomationID: "a1",
		IncidentNo:   "INC1",
		Component:    "BC-DB",
		Options:      []RunOption{{Name: "region", Values: []string{"eu10"}}},
		Status:       "RUNNING",
		StartedTS:    "2026-01-01T00:00:00Z",
	}
	if err := InsertRun(db, run); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	got, err := GetRun(db, "w1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Name != "Automation a1" || got.CompletedTS != "" || got.Status != "RUNNING" {
		t.Errorf("unexpected run: %+v", got)
	}
	if len(got.Options) != 1 || got.Options[0].Values[0] != "eu10" {
		t.Errorf("options not round-tripped: %+v", got.Options)
	}

	done := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	if err := CompleteRun(db, "w1", "SUCCESS", "all good", done); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}
	got, err = GetRun(db, "w1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != "SUCCESS" || got.CompletedTS != "2026-01-01T00:05:00Z" || got.Output != "all good" {
		t.Errorf("unexpected completed run: %+v", got)
	}

	// Completing twice fails
	if err := CompleteRun(db, "w1", "FAILED", "", done); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND on second completion, got %v", err)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	seedAutomation(t, db, "a1", "BC-DB")

	for i, ts := range []string{"2026-01-01T00:00:00Z", "2026-01-03T00:00:00Z", "2026-01-02T00:00:00Z"} {
		r := &Run{WorkflowID: string(rune('a' + i)), AutomationID: "a1", IncidentNo: "INC1", Status: "SUCCESS", StartedTS: ts}
		if err := InsertRun(db, r); err != nil {
			t.Fatalf("InsertRun failed: %v", err)
		}
	}
	if err := InsertRun(db, &Run{WorkflowID: "other", AutomationID: "a1", IncidentNo: "INC2", Status: "RUNNING", StartedTS: "2026-01-04T00:00:00Z"}); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	runs, err := ListRuns(db, "INC1")
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 || runs[0].WorkflowID != "b" || runs[1].WorkflowID != "c" || runs[2].WorkflowID != "a" {
		t.Errorf("unexpected order: %+v", runs)
	}
}

func TestAddFeedback(t *testing.T) {
	db := openTestDB(t)
	seedAutomation(t, db, "a1", "BC-DB")
	if err := InsertRun(db, &Run{WorkflowID: "w1", AutomationID: "a1", IncidentNo: "INC1", Status: "RUNNING", StartedTS: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	if err := AddFeedback(db, &Feedback{ID: "f1", AutomationID: "a1", WorkflowID: "w1", ThumbUp: true, CreatedAt: 1}); err != nil {
		t.Fatalf("AddFeedback failed: %v", err)
	}
	if err := AddFeedback(db, &Feedback{ID: "f2", AutomationID: "a1", WorkflowID: "w1", ThumbDown: true, CreatedAt: 2}); err != nil {
		t.Fatalf("AddFeedback failed: %v", err)
	}

	run, err := GetRun(db, "w1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.ThumbUp || !run.ThumbDown {
		t.Errorf("latest vote not applied: up=%v down=%v", run.ThumbUp, run.ThumbDown)
	}

	votes, err := ListFeedback(db, "w1")
	if err != nil {
		t.Fatalf("ListFeedback failed: %v", err)
	}
	if len(votes) != 2 || votes[0].ID != "f2" {
		t.Errorf("unexpected feedback list: %+v", votes)
	}
}

func TestAddFeedback_WrongAutomation(t *testing.T) {
	db := openTestDB(t)
	seedAutomation(t, db, "a1", "BC-DB")
	if err := InsertRun(db, &Run{WorkflowID: "w1", AutomationID: "a1", IncidentNo: "INC1", Status: "RUNNING", StartedTS: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	err := AddFeedback(db, &Feedback{ID: "f1", AutomationID: "a2", WorkflowID: "w1", ThumbUp: true})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	votes, _ := ListFeedback(db, "w1")
	if len(votes) != 0 {
		t.Errorf("feedback stored despite failure: %+v", votes)
	}
}

func TestCountAutomations(t *testing.T) {
	db := openTestDB(t)

	n, err := CountAutomations(db)
	if err != nil {
		t.Fatalf("CountAutomations failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}

	seedAutomation(t, db, "a1", "HAN-DB")
	seedAutomation(t, db, "a2", "BC-CP-CF")
	seedAutomation(t, db, "a1", "HAN-DB")

	n, err = CountAutomations(db)
	if err != nil {
		t.Fatalf("CountAutomations failed: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestListPulses_OrderedByCase(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"c2", "c1"} {
		if _, err := UpsertPulse(db, id, &pulse.Record{Symptom: stringPtr("<p>" + id + "</p>")}, "tester", now); err != nil {
			t.Fatalf("UpsertPulse failed: %v", err)
		}
	}

	got, err := ListPulses(context.Background(), db)
	if err != nil {
		t.Fatalf("ListPulses failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].CaseID != "c1" || got[1].CaseID != "c2" {
		t.Errorf("order = %s, %s", got[0].CaseID, got[1].CaseID)
	}
	if got[0].Record.Symptom == nil || *got[0].Record.Symptom != "<p>c1</p>" {
		t.Errorf("symptom = %v", got[0].Record.Symptom)
	}
	if got[0].Record.UpdatedBy != "tester" {
		t.Errorf("updated by = %q", got[0].Record.UpdatedBy)
	}
}

func TestAllAutomations_OrderedByComponent(t *testing.T) {
	db := openTestDB(t)
	seedAutomation(t, db, "a1", "HAN-DB")
	seedAutomation(t, db, "a2", "BC-CP-CF", "SAP BTP")

	got, err := AllAutomations(db)
	if err != nil {
		t.Fatalf("AllAutomations failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "a2" || got[1].ID != "a1" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if len(got[0].Products) != 1 || got[0].Products[0] != "SAP BTP" {
		t.Errorf("products = %v", got[0].Products)
	}
}
