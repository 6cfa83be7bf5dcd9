package iperf

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

func TestParseResult(t *testing.T) {
	result, err := ParseResult(loadFixture(t, "result.json"))
	require.NoError(t, err)

	assert.Equal(t, 201954188.06585097, result.Received.BitsPerSecond)
	assert.Equal(t, 0.057079530215429858, result.Received.JitterMilliseconds)
	assert.Equal(t, 0.0, result.Received.LostPercent)
	assert.Equal(t, int64(126221776), result.Sent.Bytes)
	assert.Equal(t, int64(87170), result.Sent.Packets)
	assert.True(t, result.Sent.Sender)
	assert.False(t, result.Received.Sender)
}

func TestParseResultMissingField(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal(loadFixture(t, "result.json"), &doc))
	received := doc["end"].(map[string]any)["sum_received"].(map[string]any)
	delete(received, "jitter_ms")
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	result, err := ParseResult(payload)
	require.ErrorIs(t, err, ErrMalformedResult)
	assert.Contains(t, err.Error(), "end.sum_received.jitter_ms")
	assert.Equal(t, Result{}, result)
}

func TestParseResultRejects(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"syntax":         `{"end":`,
		"no end":         `{"start":{}}`,
		"no sum_sent":    `{"end":{"sum_received":{}}}`,
		"wrong type":     `{"end":{"sum_sent":{"bytes":"lots"}}}`,
		"iperf error":    string(loadFixture(t, "error.json")),
		"negative bytes": negativeBytesPayload,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := ParseResult([]byte(payload))
			require.ErrorIs(t, err, ErrMalformedResult)
			assert.Equal(t, Result{}, result)
			assert.Equal(t, "malformed_result", Outcome(err))
		})
	}
}

const negativeBytesPayload = `{"end":{
"sum_sent":{"start":0,"end":5,"seconds":5,"bytes":-1,"bits_per_second":1,"jitter_ms":0,"lost_packets":0,"packets":1,"lost_percent":0,"sender":true},
"sum_received":{"start":0,"end":5,"seconds":5,"bytes":1,"bits_per_second":1,"jitter_ms":0,"lost_packets":0,"packets":1,"lost_percent":0,"sender":false}}}`

func TestReportedError(t *testing.T) {
	assert.Equal(t, "error - unable to connect to server: Connection refused", reportedError(loadFixture(t, "error.json")))
	assert.Empty(t, reportedError(loadFixture(t, "result.json")))
	assert.Empty(t, reportedError([]byte("iperf3: error")))
}
