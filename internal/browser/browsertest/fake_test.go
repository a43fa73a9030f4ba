package browsertest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/internal/browser"
)

func TestFake_RecordsAndAnswers(t *testing.T) {
	f := New()
	f.Texts["#price"] = "42"
	ctx := context.Background()

	require.NoError(t, f.Navigate(ctx, "https://x"))
	ok, err := f.Exists(ctx, "#price")
	require.NoError(t, err)
	assert.True(t, ok)
	text, err := f.Text(ctx, "#price")
	require.NoError(t, err)
	assert.Equal(t, "42", text)

	idx := 2
	require.NoError(t, f.SelectOption(ctx, "#country", browser.Option{Index: &idx}))

	assert.Equal(t, []string{"navigate", "exists", "text", "selectOption"}, f.Ops())
	assert.Equal(t, "#2", f.Calls()[3].Value)
}

func TestFake_Errors(t *testing.T) {
	f := New()
	boom := errors.New("boom")
	f.Errors["click #bad"] = boom

	assert.NoError(t, f.Click(context.Background(), "#good"))
	assert.ErrorIs(t, f.Click(context.Background(), "#bad"), boom)
	assert.Len(t, f.Calls(), 1)
}

func TestFake_ExistsSequence(t *testing.T) {
	f := New()
	f.ExistsSeq[".next"] = []bool{true, true, false}
	ctx := context.Background()

	var got []bool
	for i := 0; i < 4; i++ {
		ok, err := f.Exists(ctx, ".next")
		require.NoError(t, err)
		got = append(got, ok)
	}
	assert.Equal(t, []bool{true, true, false, false}, got)
}

func TestFake_CancelledContext(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Click(ctx, "#x"), context.Canceled)
	assert.Empty(t, f.Calls())
}
