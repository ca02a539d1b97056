package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleQuantity(t *testing.T) {
	cases := []struct {
		name    string
		perUnit int64
		units   int64
		want    int64
		ok      bool
	}{
		{"simple", 2, 100, 200, true},
		{"zero per unit", 0, math.MaxInt64, 0, true},
		{"at limit", 1, math.MaxInt64, math.MaxInt64, true},
		{"overflow", 2, 1<<62 + 1, 0, false},
		{"negative units", 3, -1, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ScaleQuantity(tc.perUnit, tc.units)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAggregateBomSumsAndSorts(t *testing.T) {
	usage := AggregateBom([]ProductBomLine{
		{PartNumber: "P-200", QuantityNeeded: 1},
		{PartNumber: "P-100", QuantityNeeded: 2},
		{PartNumber: "P-200", QuantityNeeded: 3},
	})
	assert.Equal(t, []PartUsage{{PartNumber: "P-100", QuantityNeeded: 2}, {PartNumber: "P-200", QuantityNeeded: 4}}, usage)
}
