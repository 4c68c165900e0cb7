package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptOnlyFromOpen(t *testing.T) {
	i := Issue{RuleID: "MARGIN_RANGE", Severity: SeverityWarning, Status: StatusOpen}
	require.NoError(t, i.Accept())
	assert.Equal(t, StatusAccepted, i.Status)

	assert.Error(t, i.Accept(), "second accept must fail")
}

func TestOverrideRequiresValueAndNote(t *testing.T) {
	v := d("250")

	i := Issue{RuleID: "SIGN_INVALID", Severity: SeverityError, Status: StatusOpen}
	assert.Error(t, i.Override(nil, "note without value"))
	assert.Error(t, i.Override(&v, ""))
	assert.Equal(t, StatusOpen, i.Status, "failed override must not transition")

	require.NoError(t, i.Override(&v, "restated per signed engagement memo"))
	assert.Equal(t, StatusOverridden, i.Status)
	require.NotNil(t, i.OverrideValue)
	assert.True(t, i.OverrideValue.Equal(v))

	assert.Error(t, i.Override(&v, "again"), "override of a closed issue must fail")
}

func TestSortOrder(t *testing.T) {
	issues := []Issue{
		{RuleID: "PERIOD_SWING", Severity: SeverityWarning, FiscalYear: 2023, Code: "REV_001"},
		{RuleID: "SIGN_INVALID", Severity: SeverityError, FiscalYear: 2024, Code: "REV_001"},
		{RuleID: "MISSING_CRITICAL_ITEM", Severity: SeverityError, Code: "ASSET_TOT"},
		{RuleID: "MAPPING_AMBIGUOUS", Severity: SeverityWarning, FiscalYear: 2023, Code: "COGS_001"},
		{RuleID: "RECON_IDENTITY", Severity: SeverityError, FiscalYear: 2024},
	}
	Sort(issues)

	got := make([]string, len(issues))
	for i, is := range issues {
		got[i] = is.RuleID
	}
	assert.Equal(t, []string{
		"MISSING_CRITICAL_ITEM", // error, year 0
		"RECON_IDENTITY",        // error, 2024, empty code
		"SIGN_INVALID",          // error, 2024, REV_001
		"MAPPING_AMBIGUOUS",     // warning, 2023, COGS_001
		"PERIOD_SWING",          // warning, 2023, REV_001
	}, got)
}

func TestHasBlocking(t *testing.T) {
	issues := []Issue{
		{RuleID: "MARGIN_RANGE", Severity: SeverityWarning, Status: StatusOpen},
		{RuleID: "SIGN_INVALID", Severity: SeverityError, Status: StatusOpen},
	}
	assert.True(t, HasBlocking(issues))

	require.NoError(t, issues[1].Accept())
	assert.False(t, HasBlocking(issues), "accepted errors no longer block")

	assert.False(t, HasBlocking(nil))
}
