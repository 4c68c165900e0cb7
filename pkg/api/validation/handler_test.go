package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuation_workbench/pkg/core/statement"
	"valuation_workbench/pkg/core/validate"
)

// In-memory repositories for handler tests.
type memIssues struct {
	issues []validate.Issue
}

func (m *memIssues) SaveAll(ctx context.Context, engagementID string, issues []validate.Issue) error {
	m.issues = issues
	return nil
}

func (m *memIssues) ListByEngagement(ctx context.Context, engagementID string) ([]validate.Issue, error) {
	out := make([]validate.Issue, len(m.issues))
	copy(out, m.issues)
	return out, nil
}

func (m *memIssues) Update(ctx context.Context, engagementID string, issue validate.Issue) error {
	for i := range m.issues {
		if m.issues[i].RuleID == issue.RuleID &&
			m.issues[i].Code == issue.Code &&
			m.issues[i].FiscalYear == issue.FiscalYear {
			m.issues[i] = issue
			return nil
		}
	}
	m.issues = append(m.issues, issue)
	return nil
}

type memStatements struct {
	stmt  *statement.NormalizedStatement
	saves int
}

func (m *memStatements) Save(ctx context.Context, stmt *statement.NormalizedStatement) error {
	m.stmt = stmt
	m.saves++
	return nil
}

func (m *memStatements) Load(ctx context.Context, engagementID string) (*statement.NormalizedStatement, error) {
	return m.stmt, nil
}

func overrideFixture(t *testing.T) (*Handler, *memIssues, *memStatements) {
	t.Helper()
	stmt := statement.New("ENG-001")
	stmt.EnsurePeriod(2025).Set("REV_001", decimal.NewFromInt(1000))

	issues := &memIssues{issues: []validate.Issue{{
		RuleID:     "SIGN_INVALID",
		Severity:   validate.SeverityError,
		Code:       "REV_001",
		FiscalYear: 2025,
		Status:     validate.StatusOpen,
	}}}
	statements := &memStatements{stmt: stmt}
	return NewHandler(nil, issues, statements, nil), issues, statements
}

func postOverride(t *testing.T, h *Handler, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/engagements/ENG-001/issues/override", bytes.NewReader(raw))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("engagementID", "ENG-001")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.OverrideIssue(rec, req)
	return rec
}

func TestOverrideWritesCorrectionToStatement(t *testing.T) {
	h, issues, statements := overrideFixture(t)

	rec := postOverride(t, h, map[string]interface{}{
		"rule_id":        "SIGN_INVALID",
		"canonical_code": "REV_001",
		"fiscal_year":    2025,
		"value":          "1250",
		"note":           "per signed management representation",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The replacement value landed on the statement, not just the issue row.
	v, ok := statements.stmt.Period(2025).Value("REV_001")
	require.True(t, ok)
	assert.True(t, v.Equal(decimal.NewFromInt(1250)))
	assert.Equal(t, 1, statements.saves)
	// The overwritten source figure is preserved for audit.
	prev := statements.stmt.Period(2025).Extracted["REV_001"]
	assert.True(t, prev.Equal(decimal.NewFromInt(1000)))

	require.Len(t, issues.issues, 1)
	is := issues.issues[0]
	assert.Equal(t, validate.StatusOverridden, is.Status)
	require.NotNil(t, is.OverrideValue)
	assert.True(t, is.OverrideValue.Equal(decimal.NewFromInt(1250)))
}

func TestOverrideUnknownPeriodConflicts(t *testing.T) {
	h, issues, statements := overrideFixture(t)
	issues.issues[0].FiscalYear = 2030 // no such period on the statement

	rec := postOverride(t, h, map[string]interface{}{
		"rule_id":        "SIGN_INVALID",
		"canonical_code": "REV_001",
		"fiscal_year":    2030,
		"value":          "1250",
		"note":           "bad year",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	// Neither side persisted.
	assert.Equal(t, 0, statements.saves)
	assert.Equal(t, validate.StatusOpen, issues.issues[0].Status)
}

func TestOverrideClosedIssueConflicts(t *testing.T) {
	h, issues, statements := overrideFixture(t)
	issues.issues[0].Status = validate.StatusAccepted

	rec := postOverride(t, h, map[string]interface{}{
		"rule_id":        "SIGN_INVALID",
		"canonical_code": "REV_001",
		"fiscal_year":    2025,
		"value":          "1250",
		"note":           "already reviewed",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, statements.saves)
}

func TestOverrideMissingNoteRejected(t *testing.T) {
	h, _, statements := overrideFixture(t)

	rec := postOverride(t, h, map[string]interface{}{
		"rule_id":        "SIGN_INVALID",
		"canonical_code": "REV_001",
		"fiscal_year":    2025,
		"value":          "1250",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0, statements.saves)
}
