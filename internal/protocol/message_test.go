package protocol

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("sess-1", "orchestrator", "data_validator", "validate_data_quality",
		map[string]any{"dataset_path": "/data/results.csv"})

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "sess-1", req.SessionID)
	assert.Equal(t, "orchestrator", req.Sender)
	assert.Equal(t, "data_validator", req.Receiver)
	assert.Equal(t, KindRequest, req.Kind)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "validate_data_quality", req.Task)
	assert.Nil(t, req.Result)
	assert.WithinDuration(t, time.Now().UTC(), req.Timestamp, time.Minute)
}

func TestNewResponse_SwapsAddressingAndCopiesTask(t *testing.T) {
	req := NewRequest("sess-1", "orchestrator", "data_validator", "validate_data_quality", nil)
	resp := NewResponse(req, map[string]any{"score": 85.0})

	assert.Equal(t, req.Receiver, resp.Sender)
	assert.Equal(t, req.Sender, resp.Receiver)
	assert.Equal(t, req.Task, resp.Task)
	assert.Equal(t, KindResponse, resp.Kind)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.NotEqual(t, req.ID, resp.ID)
	assert.True(t, resp.Answers(req))
}

func TestNewError_CarriesReason(t *testing.T) {
	req := NewRequest("sess-1", "orchestrator", "stats_validator", "validate_statistical_rigor", nil)
	errMsg := NewError(req, "timeout after 5s")

	assert.Equal(t, KindError, errMsg.Kind)
	assert.Equal(t, StatusFailed, errMsg.Status)
	assert.Equal(t, req.Task, errMsg.Task)
	assert.Equal(t, "timeout after 5s", errMsg.ErrorReason())
	assert.True(t, errMsg.Answers(req))
}

func TestErrorReason_NonError(t *testing.T) {
	req := NewRequest("s", "a", "b", "t", nil)
	assert.Equal(t, "", req.ErrorReason())
	assert.Equal(t, "", NewResponse(req, nil).ErrorReason())
}

func TestAnswers_RejectsMismatches(t *testing.T) {
	req := NewRequest("sess-1", "orchestrator", "data_validator", "validate_data_quality", nil)
	other := NewRequest("sess-1", "orchestrator", "code_validator", "validate_code_quality", nil)

	assert.False(t, NewResponse(other, nil).Answers(req), "different task must not match")
	assert.False(t, req.Answers(req), "a request answers nothing")
}

// The wire form must be total and lossless: serializing then deserializing
// any message yields a value equal in all fields.
func TestMessage_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  *Message
	}{
		{
			name: "request",
			msg: NewRequest("sess-9", "orchestrator", "report_validator", "validate_report_quality",
				map[string]any{
					"context": map[string]any{
						"hypothesis":      "new flow lifts conversion",
						"success_metrics": []any{"conversion_rate", "aov"},
						"effect_size":     0.05,
						"strict":          true,
					},
				}),
		},
		{
			name: "response",
			msg: NewResponse(
				NewRequest("sess-9", "orchestrator", "data_validator", "validate_data_quality", nil),
				map[string]any{"score": 85.0, "details": map[string]any{"rows": 200.0}}),
		},
		{
			name: "error",
			msg: NewError(
				NewRequest("sess-9", "orchestrator", "stats_validator", "validate_statistical_rigor", nil),
				"dataset unreadable"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.msg.Marshal()
			require.NoError(t, err)

			got, err := Unmarshal(data)
			require.NoError(t, err)

			if diff := cmp.Diff(tc.msg, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
