package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalarResolve(t *testing.T) {
	o := Scalar("CMSSW_12_4_0")
	assert.Equal(t, "CMSSW_12_4_0", o.Resolve("Run2022A", 100))
	assert.Equal(t, "CMSSW_12_4_0", o.Resolve("", 0))
	assert.False(t, o.IsZero())
}

func TestZeroOverride(t *testing.T) {
	var o Override
	assert.True(t, o.IsZero())
	assert.Equal(t, "", o.Resolve("Run2022A", 100))
}

func TestEraOverride(t *testing.T) {
	o := Structured(map[string]string{"Run2022A": "GT_A", "Run2022B": "GT_B"}, nil, "GT_DEF")

	assert.Equal(t, "GT_A", o.Resolve("Run2022A", 100))
	assert.Equal(t, "GT_B", o.Resolve("Run2022B", 100))
	assert.Equal(t, "GT_DEF", o.Resolve("Run2022C", 100))
}

func TestRunThresholdOverride(t *testing.T) {
	o := Structured(nil, []RunThreshold{
		{MaxRun: 100, Value: "A"},
		{MaxRun: 200, Value: "B"},
	}, "X")

	cases := []struct {
		run  uint32
		want string
	}{
		{50, "X"},
		{100, "X"},
		{101, "A"},
		{150, "A"},
		{200, "A"},
		{201, "X"},
		{250, "X"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, o.Resolve("", tc.run), "run %d", tc.run)
	}
}

func TestThresholdsSortedOnConstruction(t *testing.T) {
	o := Structured(nil, []RunThreshold{
		{MaxRun: 200, Value: "B"},
		{MaxRun: 100, Value: "A"},
	}, "X")

	assert.Equal(t, "A", o.Resolve("", 150))
	assert.Equal(t, "X", o.Resolve("", 250))
}

func TestEraWinsOverThreshold(t *testing.T) {
	o := Structured(
		map[string]string{"Run2022A": "ERA"},
		[]RunThreshold{
			{MaxRun: 100, Value: "THR"},
			{MaxRun: 999999, Value: "LATE"},
		},
		"DEF",
	)

	assert.Equal(t, "ERA", o.Resolve("Run2022A", 150))
	assert.Equal(t, "THR", o.Resolve("Run2022B", 150))
	assert.Equal(t, "DEF", o.Resolve("Run2022B", 50))
}
