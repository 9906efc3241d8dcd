package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// Automation is a guided engineering automation offered for a component.
type Automation struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Component   string   `json:"component" yaml:"component"`
	Products    []string `json:"products,omitempty" yaml:"products,omitempty"`
	Options     []Option `json:"options,omitempty" yaml:"options,omitempty"`
	CreatedAt   int64    `json:"-" yaml:"-"`
}

// Option declares a runtime option of an automation.
type Option struct {
	Name     string   `json:"name" yaml:"name"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Control  string   `json:"control" yaml:"control"`
	Multi    bool     `json:"multi,omitempty" yaml:"multi,omitempty"`
	Choices  []string `json:"choices,omitempty" yaml:"choices,omitempty"`
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
}

// RunOption is an option value a run was started with.
type RunOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Run is one execution of an automation for a case.
type Run struct {
	WorkflowID   string      `json:"workflow_id"`
	AutomationID string      `json:"automation_id"`
	Name         string      `json:"name,omitempty"`
	IncidentNo   string      `json:"incident_no"`
	Component    string      `json:"component,omitempty"`
	Options      []RunOption `json:"options,omitempty"`
	Status       string      `json:"status"`
	Output       string      `json:"output,omitempty"`
	StartedTS    string      `json:"started_ts"`
	CompletedTS  string      `json:"completed_ts,omitempty"`
	ThumbUp      bool        `json:"thumb_up"`
	ThumbDown    bool        `json:"thumb_down"`
}

// Feedback is a vote left on a run.
type Feedback struct {
	ID           string `json:"id"`
	AutomationID string `json:"automation_id"`
	WorkflowID   string `json:"workflow_id"`
	ThumbUp      bool   `json:"thumb_up"`
	ThumbDown    bool   `json:"thumb_down"`
	CreatedAt    int64  `json:"created_at"`
}

// =============================================================================
// Pulses
// =============================================================================

const pulseColumns = `case_id, symptom, environment, steps_to_reproduce, business_impact,
	customer_contacts, data_collected, research, research_internal, cause,
	solution, see_also, internal_memo_html, sys_updated_on, sys_updated_by`

// GetPulse retrieves the pulse record of a case.
func GetPulse(db *sql.DB, caseID string) (*pulse.Record, error) {
	row := db.QueryRow("SELECT "+pulseColumns+" FROM pulses WHERE case_id = ?", caseID)
	r, err := scanPulse(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("pulse", caseID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// UpsertPulse merges patch into the stored record of a case, creating it if
// needed, and stamps the update time and user. Fields absent from patch keep
// their stored value.
func UpsertPulse(db *sql.DB, caseID string, patch *pulse.Record, updatedBy string, now time.Time) (*pulse.Record, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback()

	record := &pulse.Record{}
	row := tx.QueryRow("SELECT "+pulseColumns+" FROM pulses WHERE case_id = ?", caseID)
	existing, err := scanPulse(row)
	switch {
	case err == nil:
		record = existing
	case err != sql.ErrNoRows:
		return nil, errors.NewInternal(err)
	}

	record.Merge(patch)
	record.UpdatedOn = now.UTC().Format(pulse.UpdatedOnLayout)
	record.UpdatedBy = updatedBy

	args := []any{caseID}
	for _, name := range pulse.TextFields {
		args = append(args, toNullString(record.Field(name)))
	}
	args = append(args, record.UpdatedOn, record.UpdatedBy)

	query := `
		INSERT INTO pulses (` + pulseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			symptom = excluded.symptom,
			environment = excluded.environment,
			steps_to_reproduce = excluded.steps_to_reproduce,
			business_impact = excluded.business_impact,
			customer_contacts = excluded.customer_contacts,
			data_collected = excluded.data_collected,
			research = excluded.research,
			research_internal = excluded.research_internal,
			cause = excluded.cause,
			solution = excluded.solution,
			see_also = excluded.see_also,
			internal_memo_html = excluded.internal_memo_html,
			sys_updated_on = excluded.sys_updated_on,
			sys_updated_by = excluded.sys_updated_by
	`
	if _, err := tx.Exec(query, args...); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return record, nil
}

// CasePulse pairs a stored record with its case id.
type CasePulse struct {
	CaseID string
	Record *pulse.Record
}

// ListPulses returns every stored pulse ordered by case id.
func ListPulses(ctx context.Context, db *sql.DB) ([]CasePulse, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+pulseColumns+" FROM pulses ORDER BY case_id")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []CasePulse{}
	for rows.Next() {
		id, r, err := scanPulseWithID(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, CasePulse{CaseID: id, Record: r})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// PutPulse stores a full record as is, replacing any existing one.
// Used for seeding; the record's own timestamps are kept.
func PutPulse(db *sql.DB, caseID string, r *pulse.Record) error {
	args := []any{caseID}
	for _, name := range pulse.TextFields {
		args = append(args, toNullString(r.Field(name)))
	}
	args = append(args, r.UpdatedOn, r.UpdatedBy)
	_, err := db.Exec("INSERT OR REPLACE INTO pulses ("+pulseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", args...)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func scanPulse(row scanner) (*pulse.Record, error) {
	_, r, err := scanPulseWithID(row)
	return r, err
}

func scanPulseWithID(row scanner) (string, *pulse.Record, error) {
	var (
		caseID string
		fields = make([]sql.NullString, len(pulse.TextFields))
		r      pulse.Record
	)
	dest := []any{&caseID}
	for i := range fields {
		dest = append(dest, &fields[i])
	}
	dest = append(dest, &r.UpdatedOn, &r.UpdatedBy)
	if err := row.Scan(dest...); err != nil {
		return "", nil, err
	}
	for i, name := range pulse.TextFields {
		r.SetField(name, fromNullString(fields[i]))
	}
	return caseID, &r, nil
}

// =============================================================================
// Automations
// =============================================================================

// PutAutomation inserts or replaces an automation definition.
func PutAutomation(db *sql.DB, a *Automation) error {
	products, err := toNullJSON(a.Products, len(a.Products))
	if err != nil {
		return errors.NewInternal(err)
	}
	options, err := toNullJSON(a.Options, len(a.Options))
	if err != nil {
		return errors.NewInternal(err)
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}
	query := `
		INSERT OR REPLACE INTO automations (id, name, description, component, products_json, options_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.Exec(query, a.ID, a.Name, emptyAsNull(a.Description), a.Component, products, options, a.CreatedAt); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetAutomation retrieves an automation by id.
func GetAutomation(db *sql.DB, id string) (*Automation, error) {
	row := db.QueryRow(`
		SELECT id, name, description, component, products_json, options_json, created_at
		FROM automations WHERE id = ?
	`, id)
	a, err := scanAutomation(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("automation", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return a, nil
}

// CountAutomations returns the number of stored automations.
func CountAutomations(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM automations`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// AllAutomations returns every automation ordered by component and name.
func AllAutomations(db *sql.DB) ([]Automation, error) {
	rows, err := db.Query(`
		SELECT id, name, description, component, products_json, options_json, created_at
		FROM automations
		ORDER BY component, name, id
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Automation{}
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ListAutomations returns the automations of a component ordered by name.
// A non-empty product keeps automations without a product list and those
// listing the product (case-insensitive).
func ListAutomations(db *sql.DB, component, product string) ([]Automation, error) {
	rows, err := db.Query(`
		SELECT id, name, description, component, products_json, options_json, created_at
		FROM automations WHERE component = ?
		ORDER BY name, id
	`, component)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Automation{}
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if product != "" && len(a.Products) > 0 && !slices.ContainsFunc(a.Products, func(p string) bool {
			return strings.EqualFold(p, product)
		}) {
			continue
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row scanner) (*Automation, error) {
	var (
		a           Automation
		description sql.NullString
		products    sql.NullString
		options     sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &description, &a.Component, &products, &options, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Description = description.String
	if err := fromNullJSON(products, &a.Products); err != nil {
		return nil, err
	}
	if err := fromNullJSON(options, &a.Options); err != nil {
		return nil, err
	}
	return &a, nil
}

// =============================================================================
// Runs
// =============================================================================

const runColumns = `r.workflow_id, r.automation_id, COALESCE(a.name, ''), r.incident_no, r.component,
	r.options_json, r.status, r.output, r.started_ts, r.completed_ts, r.thumb_up, r.thumb_down`

// InsertRun stores a new run.
func InsertRun(db *sql.DB, r *Run) error {
	options, err := toNullJSON(r.Options, len(r.Options))
	if err != nil {
		return errors.NewInternal(err)
	}
	query := `
		INSERT INTO automation_runs (
			workflow_id, automation_id, incident_no, component, options_json,
			status, output, started_ts, completed_ts, thumb_up, thumb_down
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.Exec(query,
		r.WorkflowID, r.AutomationID, r.IncidentNo, emptyAsNull(r.Component), options,
		r.Status, emptyAsNull(r.Output), r.StartedTS, emptyAsNull(r.CompletedTS), r.ThumbUp, r.ThumbDown,
	)
	if err != nil {
		if isConstraintError(err) {
			return errors.NewNotFound("automation", r.AutomationID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetRun retrieves a run by workflow id.
func GetRun(db *sql.DB, workflowID string) (*Run, error) {
	row := db.QueryRow(`
		SELECT `+runColumns+`
		FROM automation_runs r LEFT JOIN automations a ON a.id = r.automation_id
		WHERE r.workflow_id = ?
	`, workflowID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("workflow", workflowID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns the runs of a case, newest first.
func ListRuns(db *sql.DB, incidentNo string) ([]Run, error) {
	rows, err := db.Query(`
		SELECT `+runColumns+`
		FROM automation_runs r LEFT JOIN automations a ON a.id = r.automation_id
		WHERE r.incident_no = ?
		ORDER BY r.started_ts DESC, r.workflow_id DESC
	`, incidentNo)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// CompleteRun moves a RUNNING run to a final status.
func CompleteRun(db *sql.DB, workflowID, status, output string, completed time.Time) error {
	result, err := db.Exec(`
		UPDATE automation_runs
		SET status = ?, output = ?, completed_ts = ?
		WHERE workflow_id = ? AND completed_ts IS NULL
	`, status, emptyAsNull(output), completed.UTC().Format(time.RFC3339), workflowID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("running workflow", workflowID)
	}
	return nil
}

func scanRun(row scanner) (*Run, error) {
	var (
		r           Run
		component   sql.NullString
		options     sql.NullString
		output      sql.NullString
		completedTS sql.NullString
	)
	err := row.Scan(
		&r.WorkflowID, &r.AutomationID, &r.Name, &r.IncidentNo, &component,
		&options, &r.Status, &output, &r.StartedTS, &completedTS, &r.ThumbUp, &r.ThumbDown,
	)
	if err != nil {
		return nil, err
	}
	r.Component = component.String
	r.Output = output.String
	r.CompletedTS = completedTS.String
	if err := fromNullJSON(options, &r.Options); err != nil {
		return nil, err
	}
	return &r, nil
}

// =============================================================================
// Feedback
// =============================================================================

// AddFeedback records a vote and applies it to the run. The run must belong
// to the automation.
func AddFeedback(db *sql.DB, f *Feedback) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE automation_runs SET thumb_up = ?, thumb_down = ?
		WHERE workflow_id = ? AND automation_id = ?
	`, f.ThumbUp, f.ThumbDown, f.WorkflowID, f.AutomationID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("workflow", f.WorkflowID)
	}

	if f.CreatedAt == 0 {
		f.CreatedAt = time.Now().Unix()
	}
	_, err = tx.Exec(`
		INSERT INTO automation_feedback (id, automation_id, workflow_id, thumb_up, thumb_down, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.ID, f.AutomationID, f.WorkflowID, f.ThumbUp, f.ThumbDown, f.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListFeedback returns the votes left on a run, newest first.
func ListFeedback(db *sql.DB, workflowID string) ([]Feedback, error) {
	rows, err := db.Query(`
		SELECT id, automation_id, workflow_id, thumb_up, thumb_down, created_at
		FROM automation_feedback WHERE workflow_id = ?
		ORDER BY created_at DESC, id DESC
	`, workflowID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Feedback{}
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.AutomationID, &f.WorkflowID, &f.ThumbUp, &f.ThumbDown, &f.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// isConstraintError checks if the error is a SQLite constraint violation.
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// emptyAsNull stores "" as NULL.
func emptyAsNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullJSON(v any, n int) (sql.NullString, error) {
	if n == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func fromNullJSON(ns sql.NullString, dest any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dest)
}
