package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()

	require.NoError(t, id.Validate())
	assert.False(t, id.IsZero())

	// Two generated IDs must differ.
	assert.NotEqual(t, id, NewID())
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid uuid", input: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", wantErr: false},
		{name: "empty string", input: "", wantErr: true},
		{name: "not a uuid", input: "task-42", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

func TestID_JSONRoundTrip(t *testing.T) {
	id := NewID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)
}

func TestID_MarshalJSON_Zero(t *testing.T) {
	var id ID

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestID_UnmarshalJSON_Invalid(t *testing.T) {
	var id ID
	assert.Error(t, json.Unmarshal([]byte(`"not-a-uuid"`), &id))
}
