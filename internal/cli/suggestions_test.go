package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/pkg/color"
	"github.com/ucmodeler/modelstore/pkg/model"
)

func TestCloseNames(t *testing.T) {
	names := []string{"Payment", "PaymentV2", "Pay", "Login", "MyPayments"}

	assert.Equal(t, []string{"Payment", "PaymentV2", "Pay", "MyPayments"}, closeNames(names, "payment"))
	assert.Equal(t, []string{"Login"}, closeNames(names, "LOGIN"))
	assert.Empty(t, closeNames(names, "Shipping"))
	assert.Empty(t, closeNames(names, ""))
}

func TestSuggestModels(t *testing.T) {
	color.Disable()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)

	assert.Contains(t, suggestModels(s, "Foo"), "modelstore list")

	for _, name := range []string{"Payment", "PaymentV2"} {
		rec := model.NewRecord(map[string]any{"name": name}, "", model.Lease{}, time.Now())
		require.NoError(t, s.Create(name, rec))
	}
	assert.Equal(t, "Did you mean one of: Payment, PaymentV2?", suggestModels(s, "payment"))
	assert.Equal(t, "Did you mean: PaymentV2?", suggestModels(s, "mentv"))
	assert.Contains(t, suggestModels(s, "Zzz"), "modelstore list")
}
