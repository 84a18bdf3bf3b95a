package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMat2Inverse(t *testing.T) {
	m := Mat2{{4, 1}, {2, 3}}
	inv, ok := m.Inv()
	assert.True(t, ok)

	id := m.Mul(inv)
	assert.InDelta(t, 1, id[0][0], 1e-12)
	assert.InDelta(t, 0, id[0][1], 1e-12)
	assert.InDelta(t, 0, id[1][0], 1e-12)
	assert.InDelta(t, 1, id[1][1], 1e-12)
}

func TestMat2InverseSingular(t *testing.T) {
	inv, ok := Mat2{{1, 1}, {1, 1}}.Inv()
	assert.False(t, ok)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, 0.25, inv[i][j], 1e-12)
		}
	}

	inv, ok = Diag2(4, 0).Inv()
	assert.False(t, ok)
	assert.Equal(t, Diag2(0.25, 0), inv)

	inv, ok = Mat2{}.Inv()
	assert.False(t, ok)
	assert.Equal(t, Mat2{}, inv)
}

func TestMat2Sandwich(t *testing.T) {
	a := Diag2(2, 3)
	p := Mat2{{1, 0.5}, {0.5, 2}}
	got := a.Sandwich(p)
	assert.Equal(t, Mat2{{4, 3}, {3, 18}}, got)
}

func TestMat2PSD(t *testing.T) {
	tests := []struct {
		name string
		m    Mat2
		want bool
	}{
		{"identity", Identity2(), true},
		{"zero", Mat2{}, true},
		{"rank one", Vec2{1, 2}.Outer(Vec2{1, 2}), true},
		{"negative diagonal", Diag2(-1, 1), false},
		{"indefinite", Mat2{{1, 2}, {2, 1}}, false},
		{"nan", Mat2{{math.NaN(), 0}, {0, 1}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.m.IsPSD(1e-10))
		})
	}
}

func TestMat2SymAndSums(t *testing.T) {
	m := Mat2{{1, 2}, {4, 3}}
	assert.Equal(t, Mat2{{1, 3}, {3, 3}}, m.Sym())
	assert.Equal(t, 10.0, m.Sum())
	assert.Equal(t, Vec2{3, 7}, m.RowSum())
	assert.False(t, m.IsSymmetric(1e-9))
	assert.True(t, m.Sym().IsSymmetric(1e-9))
}
