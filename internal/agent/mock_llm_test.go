package agent

import (
	"context"

	"go.uber.org/mock/gomock"

	"github.com/arc-self/board-hub/internal/llm"
)

// MockLLMClient is a hand-authored gomock mock of llm.Client, matching the
// teacher's EXPECT()/RecordCall mock shape.
type MockLLMClient struct {
	ctrl     *gomock.Controller
	recorder *MockLLMClientRecorder
}

type MockLLMClientRecorder struct {
	mock *MockLLMClient
}

func NewMockLLMClient(ctrl *gomock.Controller) *MockLLMClient {
	m := &MockLLMClient{ctrl: ctrl}
	m.recorder = &MockLLMClientRecorder{mock: m}
	return m
}

func (m *MockLLMClient) EXPECT() *MockLLMClientRecorder {
	return m.recorder
}

func toLLMError(v any) error {
	if v == nil {
		return nil
	}
	return v.(error)
}

// Complete implements llm.Client.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	ret := m.ctrl.Call(m, "Complete", ctx, req)
	resp, _ := ret[0].(llm.Response)
	return resp, toLLMError(ret[1])
}

func (mr *MockLLMClientRecorder) Complete(ctx, req any) *gomock.Call {
	return mr.mock.ctrl.RecordCall(mr.mock, "Complete", ctx, req)
}
