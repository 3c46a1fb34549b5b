package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRect_Intersects(t *testing.T) {
	a := NewRect(0, 0, 10, 10)

	tests := []struct {
		name string
		b    Rect
		want bool
	}{
		{"inside", NewRect(2, 2, 3, 3), true},
		{"overlap", NewRect(5, 5, 15, 15), true},
		{"touching edge", NewRect(10, 0, 20, 10), true},
		{"disjoint", NewRect(11, 11, 12, 12), false},
		{"empty", Empty(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Intersects(tt.b))
			assert.Equal(t, tt.want, tt.b.Intersects(a))
		})
	}
}

func TestRect_Union(t *testing.T) {
	a := NewRect(0, 0, 1, 1)
	b := NewRect(2, -1, 3, 0.5)

	u := a.Union(b)
	assert.Equal(t, Rect{MinX: 0, MinY: -1, MaxX: 3, MaxY: 1}, u)
	assert.True(t, u.Contains(a))
	assert.True(t, u.Contains(b))

	assert.Equal(t, a, Empty().Union(a))
	assert.Equal(t, a, a.Union(Empty()))
	assert.True(t, Empty().Union(Empty()).IsEmpty())
}

func TestRect_Enlargement(t *testing.T) {
	a := NewRect(0, 0, 2, 2)

	assert.Equal(t, 0.0, a.Enlargement(NewRect(1, 1, 2, 2)))
	assert.Equal(t, 4.0, a.Enlargement(NewRect(0, 0, 4, 2)))
	assert.Equal(t, 0.0, Empty().Area())
}

func TestMayHaveMatch(t *testing.T) {
	p := MayHaveMatch(NewRect(0, 0, 1, 1))

	assert.True(t, p(Point(0.5, 0.5)))
	assert.True(t, p(NewRect(1, 1, 2, 2)))
	assert.False(t, p(Point(1.5, 0.5)))
	assert.False(t, p(Empty()))
}
