package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogHasSixteenUniqueSymbols(t *testing.T) {
	all := All()
	require.Len(t, all, Count)

	seen := make(map[string]bool)
	for _, s := range all {
		assert.False(t, seen[s.Name], "duplicate symbol %q", s.Name)
		seen[s.Name] = true
		assert.NotEmpty(t, s.BaseColor)
	}
}

func TestLookupDerivesHollowFromSuffix(t *testing.T) {
	s, ok := Lookup("circle_h")
	require.True(t, ok)
	assert.True(t, s.Hollow)
	assert.Equal(t, "red", s.BaseColor)

	s, ok = Lookup("double_arrow_horizontal")
	require.True(t, ok)
	assert.False(t, s.Hollow)

	_, ok = Lookup("hexagon")
	assert.False(t, ok)
}

func TestGlyphFollowsVariant(t *testing.T) {
	star, _ := Lookup("star_f")
	g := star.Glyph(VariantColor, false)
	assert.Equal(t, "orange", g.Fill)
	assert.Equal(t, 2, g.StrokeWidth)

	g = star.Glyph(VariantMonochrome, true)
	assert.Equal(t, "black", g.Fill)
	assert.True(t, g.Dimmed)

	hollow, _ := Lookup("square_h")
	g = hollow.Glyph(VariantColor, false)
	assert.Equal(t, "white", g.Fill)
	assert.Equal(t, "blue", g.Stroke)
	assert.Equal(t, 5, g.StrokeWidth)
}

func TestGenerateReturnsDistinctCatalogSymbols(t *testing.T) {
	gen := NewGenerator(42)
	for _, size := range []int{3, 4, 5, 6, 7} {
		seq, err := gen.Generate(size)
		require.NoError(t, err)
		require.Len(t, seq, size)

		seen := make(map[string]bool)
		for _, name := range seq {
			_, ok := Lookup(name)
			assert.True(t, ok, "unknown symbol %q", name)
			assert.False(t, seen[name], "duplicate symbol %q in %v", name, seq)
			seen[name] = true
		}
	}
}

func TestGenerateWholeCatalog(t *testing.T) {
	seq, err := NewGenerator(1).Generate(Count)
	require.NoError(t, err)
	assert.ElementsMatch(t, Names(), seq)
}

func TestGenerateRejectsOutOfRangeSizes(t *testing.T) {
	gen := NewGenerator(1)
	for _, size := range []int{0, -1, Count + 1} {
		_, err := gen.Generate(size)
		assert.ErrorIs(t, err, ErrSizeOutOfRange, "size %d", size)
	}
}

func TestSeededGeneratorsAreReproducible(t *testing.T) {
	a, b := NewGenerator(7), NewGenerator(7)
	for i := 0; i < 5; i++ {
		seqA, err := a.Generate(5)
		require.NoError(t, err)
		seqB, err := b.Generate(5)
		require.NoError(t, err)
		assert.Equal(t, seqA, seqB)
		assert.Equal(t, a.Variant(), b.Variant())
	}
}

func TestVariantDrawsBothValues(t *testing.T) {
	gen := NewGenerator(3)
	seen := map[Variant]bool{}
	for i := 0; i < 64; i++ {
		v := gen.Variant()
		require.True(t, v.Valid())
		seen[v] = true
	}
	assert.Len(t, seen, 2)
}
