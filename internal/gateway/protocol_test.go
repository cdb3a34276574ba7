package gateway

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameConstructors(t *testing.T) {
	req, err := NewRequest("r1", "session.search", map[string]string{"query": "kitchen"})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, req.Type)
	assert.Equal(t, "session.search", req.Method)
	assert.JSONEq(t, `{"query":"kitchen"}`, string(req.Params))

	res, err := NewResponse("r1", map[string]int{"count": 3})
	require.NoError(t, err)
	require.NotNil(t, res.OK)
	assert.True(t, *res.OK)
	assert.Nil(t, res.Error)

	ev, err := NewEvent(EventChatDelta, map[string]string{"content": "he"}, 7)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeEvent, ev.Type)
	assert.Equal(t, int64(7), ev.Seq)

	fail := NewErrorResponse("r2", ErrorShape{Code: CodeUpstreamError, Message: "status 502", Retryable: true, RetryAfter: 5000})
	require.NotNil(t, fail.OK)
	assert.False(t, *fail.OK)
	assert.Equal(t, 5000, fail.Error.RetryAfter)

	_, err = NewResponse("r3", make(chan int))
	assert.Error(t, err)
}

func TestErrorFrameWireShape(t *testing.T) {
	raw, err := json.Marshal(NewErrorResponse("x", ErrorShape{Code: CodeInvalidParams, Message: "id is required"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"res","id":"x","ok":false,"error":{"code":"invalid_params","message":"id is required"}}`, string(raw))
}

func TestConnectParamsNegotiate(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		ok       bool
	}{
		{"exact", 1, 1, true},
		{"open range", 0, 0, true},
		{"open upper bound", 1, 0, true},
		{"wider range", 1, 3, true},
		{"client too new", 2, 3, false},
		{"client pinned ahead", 2, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ConnectParams{MinProtocol: tt.min, MaxProtocol: tt.max}.negotiate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var shape ErrorShape
			require.True(t, errors.As(err, &shape))
			assert.Equal(t, CodeProtocolMismatch, shape.Code)
		})
	}
}

func TestConnectParamsOmitEmpty(t *testing.T) {
	raw, err := json.Marshal(ConnectParams{MinProtocol: 1, MaxProtocol: 1, Client: ClientInfo{ID: "cli"}})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"auth"`)
	assert.NotContains(t, string(raw), `"locale"`)
}
