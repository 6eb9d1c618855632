package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert_RoundTripWithDuplicates(t *testing.T) {
	c := New()
	c.Record("U1", "@Alice")
	c.Record("U2", "@Bob")

	got := c.Convert("hi @Alice and @Bob, @Alice again (@Alice)")
	assert.Equal(t, "hi <@U1> and <@U2>, <@U1> again (<@U1>)", got)
}

func TestConvert_UnrecordedTextStaysLiteral(t *testing.T) {
	c := New()
	c.Record("U1", "@Alice")
	assert.Equal(t, "@alice and @Carol", c.Convert("@alice and @Carol"), "matching is case-sensitive")
}

func TestConvert_LongestDisplayTextWins(t *testing.T) {
	c := New()
	c.Record("U1", "@Al")
	c.Record("U2", "@Alice")

	assert.Equal(t, "<@U2> <@U1>", c.Convert("@Alice @Al"))
}

func TestConvert_DoesNotRescanEmittedTokens(t *testing.T) {
	c := New()
	c.Record("U1", "@x")
	c.Record("U2", "<@U1>")

	assert.Equal(t, "<@U1> <@U2>", c.Convert("@x <@U1>"))
}

func TestRecord_Upserts(t *testing.T) {
	c := New()
	c.Record("U1", "@Alice")
	c.Record("U1", "@Alice")
	c.Record("U1", "@Ally")
	require.Equal(t, 1, c.Len())

	records := c.Records()
	assert.Equal(t, "@Ally", records[0].DisplayText)
	assert.Equal(t, "@Alice", c.Convert("@Alice"), "replaced text is no longer mapped")
	assert.Equal(t, "<@U1>", c.Convert("@Ally"))
}

func TestRecord_IgnoresEmpty(t *testing.T) {
	c := New()
	c.Record("", "@x")
	c.Record("U1", "")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "@x", c.Convert("@x"))
}

func TestRecordChannel(t *testing.T) {
	c := New()
	c.Record("U1", "@general")
	c.RecordChannel("C1", "#general")
	require.Equal(t, 2, c.Len())

	assert.Equal(t, "<@U1> in <#C1>", c.Convert("@general in #general"))
}

func TestReset(t *testing.T) {
	c := New()
	c.Record("U1", "@Alice")
	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Records())
	assert.Equal(t, "@Alice", c.Convert("@Alice"))
}

func TestConvert_MultibyteSurroundings(t *testing.T) {
	c := New()
	c.Record("U1", "@Zoë")
	assert.Equal(t, "¡hola <@U1>! 👋", c.Convert("¡hola @Zoë! 👋"))
}
