package directory

import (
	"testing"

	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_FindByNumber(t *testing.T) {
	d := New([]domain.Station{
		{Number: "100", Name: "Dispatcher"},
		{Number: "101", Name: "North Junction"},
	})

	st, ok := d.FindByNumber("101")
	require.True(t, ok)
	assert.Equal(t, "North Junction", st.Name)

	_, ok = d.FindByNumber("999")
	assert.False(t, ok)
}

func TestStatic_FindAllKeepsOrder(t *testing.T) {
	d := New([]domain.Station{
		{Number: "300", Name: "C"},
		{Number: "100", Name: "A"},
		{Number: "200", Name: "B"},
	})

	all := d.FindAll()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"300", "100", "200"}, []string{all[0].Number, all[1].Number, all[2].Number})

	all[0].Name = "mutated"
	st, _ := d.FindByNumber("300")
	assert.Equal(t, "C", st.Name, "FindAll must return a copy")
}

func TestStatic_SkipsInvalidAndDuplicates(t *testing.T) {
	d := New([]domain.Station{
		{Number: "", Name: "nobody"},
		{Number: "12a", Name: "bad"},
		{Number: "100", Name: "first"},
		{Number: "100", Name: "second"},
		{Number: "200"},
	})

	assert.Equal(t, 2, d.Len())
	st, ok := d.FindByNumber("100")
	require.True(t, ok)
	assert.Equal(t, "first", st.Name)

	st, ok = d.FindByNumber("200")
	require.True(t, ok)
	assert.Equal(t, "200", st.Name, "empty name falls back to number")
}
