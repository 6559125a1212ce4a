package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlans = `
plans:
  - id: 1
    label: "$1989"
    amount: "1989"
  - id: 2
    amount: "2900"
durations: [30, 60, 90]
`

func TestParsePlans(t *testing.T) {
	catalog, err := ParsePlans([]byte(testPlans))
	require.NoError(t, err)
	require.Len(t, catalog.Plans, 2)

	p, err := catalog.FindPlan(2)
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(2900)))
	assert.Equal(t, "$2900", p.Label)

	_, err = catalog.FindPlan(7)
	assert.Error(t, err)

	assert.True(t, catalog.ValidDuration(60))
	assert.False(t, catalog.ValidDuration(45))
}

func TestParsePlans_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad amount":     "plans:\n  - id: 1\n    amount: abc\ndurations: [30]\n",
		"zero amount":    "plans:\n  - id: 1\n    amount: \"0\"\ndurations: [30]\n",
		"duplicate id":   "plans:\n  - id: 1\n    amount: \"1\"\n  - id: 1\n    amount: \"2\"\ndurations: [30]\n",
		"no durations":   "plans:\n  - id: 1\n    amount: \"1\"\n",
		"bad duration":   "plans:\n  - id: 1\n    amount: \"1\"\ndurations: [0]\n",
		"no plans":       "durations: [30]\n",
		"malformed yaml": "plans: [",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlans([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPlans_RepoFile(t *testing.T) {
	path, err := filepath.Abs(filepath.Join("..", "..", "plans.yaml"))
	require.NoError(t, err)
	if _, err := os.Stat(path); err != nil {
		t.Skip("plans.yaml not present")
	}

	catalog, err := LoadPlans(path)
	require.NoError(t, err)
	assert.Len(t, catalog.Plans, 3)
	assert.Equal(t, []int{30, 60, 90}, catalog.Durations)
}
