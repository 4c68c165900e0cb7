package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuation_workbench/pkg/core/valuation"
)

func TestDamodaranRates(t *testing.T) {
	p := NewDamodaranStatic()
	ctx := context.Background()

	rf, err := p.GetRiskFreeRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.042, rf)

	erp, err := p.GetEquityRiskPremium(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0455, erp)
}

func TestDamodaranBetaLookup(t *testing.T) {
	p := NewDamodaranStatic()
	ctx := context.Background()

	b, err := p.GetIndustryBeta(ctx, "software")
	require.NoError(t, err)
	assert.Equal(t, 1.18, b)

	// Case-insensitive.
	b, err = p.GetIndustryBeta(ctx, "Software")
	require.NoError(t, err)
	assert.Equal(t, 1.18, b)

	// Unknown industries fall back to the market beta.
	b, err = p.GetIndustryBeta(ctx, "space_mining")
	require.NoError(t, err)
	assert.Equal(t, 1.0, b)
}

func TestDamodaranComparableFiltering(t *testing.T) {
	p := NewDamodaranStatic()
	ctx := context.Background()

	set, err := p.GetComparableCompanies(ctx, Criteria{IndustryCode: "software"})
	require.NoError(t, err)
	assert.Equal(t, valuation.KindPublicCompany, set.Kind)
	require.Len(t, set.Items, 3)
	for _, c := range set.Items {
		assert.Equal(t, "software", c.IndustryCode)
	}

	set, err = p.GetComparableCompanies(ctx, Criteria{IndustryCode: "software", MinSize: 1000})
	require.NoError(t, err)
	assert.Len(t, set.Items, 2)

	set, err = p.GetComparableCompanies(ctx, Criteria{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, set.Items, 2)
}

func TestDamodaranTransactionWindow(t *testing.T) {
	p := NewDamodaranStatic()

	set, err := p.GetTransactions(context.Background(), Criteria{
		After:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Before: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, valuation.KindTransaction, set.Kind)
	require.Len(t, set.Items, 2)
	assert.Equal(t, "TXN-2024-037", set.Items[0].EntityID)
	assert.Equal(t, "TXN-2025-004", set.Items[1].EntityID)
}

func TestDamodaranDeterministic(t *testing.T) {
	p := NewDamodaranStatic()
	ctx := context.Background()

	first, err := p.GetComparableCompanies(ctx, Criteria{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.GetComparableCompanies(ctx, Criteria{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNewFactory(t *testing.T) {
	p, err := New("", Options{})
	require.NoError(t, err)
	assert.Equal(t, "damodaran", p.Name())

	p, err = New("web", Options{WebBaseURL: "http://localhost:0"})
	require.NoError(t, err)
	assert.Equal(t, "web", p.Name())

	_, err = New("bloomberg", Options{})
	assert.Error(t, err)
}
