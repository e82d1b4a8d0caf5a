// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializer_Serialize(t *testing.T) {
	t.Parallel()

	wire := func(id byte, body ...byte) []byte {
		return append([]byte{0x00, 0x00, 0x00, 0x00, id}, body...)
	}

	tests := []struct {
		name    string
		setup   func(reg *memRegistry) *Schema
		value   any
		field   Field
		want    []byte
		wantErr error
	}{
		{
			name: "registered string key",
			setup: func(reg *memRegistry) *Schema {
				ss := reg.add("orders-key", keySchemaText)
				return &Schema{ID: ss.ID, Text: keySchemaText, parsed: MustParseSchema(keySchemaText).Avro()}
			},
			value: "order-42",
			field: FieldKey,
			want:  wire(1, append([]byte{0x10}, "order-42"...)...),
		},
		{
			name: "unregistered schema is registered on first use",
			setup: func(*memRegistry) *Schema {
				return MustParseSchema(`"long"`)
			},
			value: int64(-1),
			field: FieldValue,
			want:  wire(1, 0x01),
		},
		{
			name: "record value",
			setup: func(reg *memRegistry) *Schema {
				reg.add("orders-key", keySchemaText)
				ss := reg.add("orders-value", orderSchemaText)
				s := MustParseSchema(orderSchemaText)
				s.ID = ss.ID
				return s
			},
			value: map[string]any{"id": "a", "amount": int64(3)},
			field: FieldValue,
			want:  wire(2, 0x02, 'a', 0x06),
		},
		{
			name: "schema literal with registry id",
			setup: func(*memRegistry) *Schema {
				return &Schema{ID: 7, Text: `"string"`}
			},
			value: "x",
			field: FieldValue,
			want:  wire(7, 0x02, 'x'),
		},
		{
			name: "schema literal registered on first use",
			setup: func(*memRegistry) *Schema {
				return &Schema{Text: `"long"`}
			},
			value: int64(-1),
			field: FieldValue,
			want:  wire(1, 0x01),
		},
		{
			name: "schema literal with invalid text",
			setup: func(*memRegistry) *Schema {
				return &Schema{ID: 7, Text: `{"type": "nope"}`}
			},
			value:   "x",
			field:   FieldValue,
			wantErr: ErrValidation,
		},
		{
			name:    "schema literal without text",
			setup:   func(*memRegistry) *Schema { return &Schema{ID: 7} },
			value:   "x",
			field:   FieldKey,
			wantErr: ErrValidation,
		},
		{
			name:    "nil schema",
			setup:   func(*memRegistry) *Schema { return nil },
			value:   "x",
			field:   FieldKey,
			wantErr: ErrSchemaNotFound,
		},
		{
			name: "value does not match schema",
			setup: func(reg *memRegistry) *Schema {
				ss := reg.add("orders-key", keySchemaText)
				s := MustParseSchema(keySchemaText)
				s.ID = ss.ID
				return s
			},
			value:   struct{}{},
			field:   FieldKey,
			wantErr: ErrEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := newMemRegistry()
			schema := tt.setup(reg)
			s := NewSerializer(newResolver(reg))

			got, err := s.Serialize(context.Background(), "orders", schema, tt.value, tt.field)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerializer_RegistersUnderFieldSubject(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	s := NewSerializer(newResolver(reg))

	_, err := s.Serialize(context.Background(), "orders", MustParseSchema(keySchemaText), "k", FieldKey)
	require.NoError(t, err)

	ss, err := reg.SchemaByVersion(context.Background(), "orders-key", -1)
	require.NoError(t, err)
	assert.Equal(t, 1, ss.Version)
}

func TestSerializer_RegistryErrorsPropagate(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	reg.fail = errors.New("registry down")
	s := NewSerializer(newResolver(reg))

	_, err := s.Serialize(context.Background(), "orders", MustParseSchema(keySchemaText), "k", FieldKey)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.Equal(t, 1, reg.count("CreateSchema"), "not retried")
}

func TestSerializer_RoundTrip(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	s := NewSerializer(newResolver(reg))

	b, err := s.Serialize(context.Background(), "orders", MustParseSchema(orderSchemaText),
		map[string]any{"id": "order-42", "amount": int64(1500)}, FieldValue)
	require.NoError(t, err)

	// A separate resolver has to fetch the writer schema by ID.
	got, err := NewSerializer(newResolver(reg)).Deserialize(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "order-42", "amount": int64(1500)}, got)
}

func TestSerializer_Deserialize_Errors(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	reg.add("orders-value", orderSchemaText)
	s := NewSerializer(newResolver(reg))

	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{
			name:    "too short",
			payload: []byte{0x00, 0x00},
			wantErr: ErrEncoding,
		},
		{
			name:    "bad magic byte",
			payload: []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0x00},
			wantErr: ErrEncoding,
		},
		{
			name:    "unknown schema id",
			payload: []byte{0x00, 0x00, 0x00, 0x00, 0x63, 0x00},
			wantErr: ErrSchemaNotFound,
		},
		{
			name:    "truncated body",
			payload: []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x10, 'o'},
			wantErr: ErrEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Deserialize(context.Background(), tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
