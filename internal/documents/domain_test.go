package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTypeAcceptsLegacyLabels(t *testing.T) {
	cases := map[string]Type{
		"receipt":        TypeReceipt,
		"income":         TypeReceipt,
		"Оприходование":  TypeReceipt,
		"writeoff":       TypeWriteoff,
		"write-off":      TypeWriteoff,
		"outcome":        TypeWriteoff,
		"Списание":       TypeWriteoff,
		"shipment":       TypeShipment,
		"Отгрузка":       TypeShipment,
		"order":          TypeOrder,
		"Заказ":          TypeOrder,
		"  Shipment   ":  TypeShipment,
	}
	for input, want := range cases {
		got, err := ParseType(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := ParseType("transfer")
	require.ErrorIs(t, err, ErrUnknownType)
	_, err = ParseType("")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestConsumesOnPost(t *testing.T) {
	require.False(t, Document{Type: TypeReceipt}.ConsumesOnPost())
	require.True(t, Document{Type: TypeWriteoff}.ConsumesOnPost())
	require.True(t, Document{Type: TypeShipment}.ConsumesOnPost())
	require.False(t, Document{Type: TypeOrder}.ConsumesOnPost())
	require.True(t, Document{Type: TypeOrder, IsReserved: true}.ConsumesOnPost())
}

func TestTypeValidAndLabel(t *testing.T) {
	for _, typ := range []Type{TypeReceipt, TypeWriteoff, TypeShipment, TypeOrder} {
		require.True(t, typ.Valid())
		require.NotEmpty(t, typ.Label())
	}
	require.False(t, Type("transfer").Valid())
}
