package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentgate "github.com/agentgate/agentgate"
)

func TestParseReferenceRoundTrip(t *testing.T) {
	canonical := "eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432#2376"

	tests := []struct {
		name  string
		input string
	}{
		{name: "hash separator", input: canonical},
		{name: "slash separator", input: "eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432/2376"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseReference(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "eip155", ref.Namespace)
			assert.Equal(t, uint64(8453), ref.ChainID)
			assert.Equal(t, "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432", ref.Registry)
			assert.Equal(t, uint64(2376), ref.LocalID)

			// Either separator reformats to the canonical "#" form.
			assert.Equal(t, canonical, ref.String())
		})
	}
}

func TestParseReferenceRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"eip155:8453",
		"eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
		"eip155:-1:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432#1",
		"eip155:8453:0x12345#1",                                       // short address
		"eip155:8453:8004A169FB4a3325136EB29fA0ceB6D2e539a432#1",      // missing 0x
		"eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432#-5",   // negative id
		"eip155:abc:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432#1",     // non-numeric chain
		"eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432#1#2",  // trailing junk
	}

	for _, input := range tests {
		_, err := ParseReference(input)
		require.Error(t, err, "input %q", input)
		assert.Equal(t, agentgate.ErrCodeMalformedReference, agentgate.CodeOf(err))
	}
}

func TestReferenceSameRegistry(t *testing.T) {
	ref, err := ParseReference("eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432#7")
	require.NoError(t, err)

	assert.True(t, ref.SameRegistry(8453, "0x8004a169fb4a3325136eb29fa0ceb6d2e539a432"))
	assert.False(t, ref.SameRegistry(1, ref.Registry))
	assert.False(t, ref.SameRegistry(8453, "0x0000000000000000000000000000000000000001"))
}

func TestRecordClaimedBy(t *testing.T) {
	ref, err := ParseReference("eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432#7")
	require.NoError(t, err)

	tests := []struct {
		name   string
		record Record
		want   bool
	}{
		{
			name: "exact backreference",
			record: Record{CrossReferences: []CrossReference{
				{LocalID: 7, RegistryRef: "eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432"},
			}},
			want: true,
		},
		{
			name: "case-insensitive registry address",
			record: Record{CrossReferences: []CrossReference{
				{LocalID: 7, RegistryRef: "eip155:8453:0x8004a169fb4a3325136eb29fa0ceb6d2e539a432"},
			}},
			want: true,
		},
		{
			name: "wrong local id",
			record: Record{CrossReferences: []CrossReference{
				{LocalID: 8, RegistryRef: "eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432"},
			}},
			want: false,
		},
		{
			name: "wrong chain",
			record: Record{CrossReferences: []CrossReference{
				{LocalID: 7, RegistryRef: "eip155:1:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432"},
			}},
			want: false,
		},
		{name: "no references", record: Record{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.ClaimedBy(ref))
		})
	}
}

func TestRecordServiceLookup(t *testing.T) {
	record := Record{Services: []Service{
		{Name: "A2A", Endpoint: "https://a2a.example.com"},
		{Name: "MCP", Endpoint: "https://mcp.example.com/mcp"},
	}}

	svc := record.Service("mcp")
	require.NotNil(t, svc)
	assert.Equal(t, "https://mcp.example.com/mcp", svc.Endpoint)

	assert.Nil(t, record.Service("rest"))
}
