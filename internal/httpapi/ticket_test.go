package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTickets struct {
	ticket string
	err    error
}

func (f fakeTickets) Issue(ctx context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.ticket, nil
}

func newServer(h *TicketHandler) *echo.Echo {
	e := echo.New()
	e.Use(InternalContextMiddleware())
	h.Register(e)
	return e
}

func TestIssueRejectsUnauthenticatedRequest(t *testing.T) {
	h := &TicketHandler{Tickets: fakeTickets{ticket: "abc"}, Log: zap.NewNop()}
	e := newServer(h)

	req := httptest.NewRequest(http.MethodPost, "/ticket", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueReturnsTicketForAuthenticatedUser(t *testing.T) {
	h := &TicketHandler{Tickets: fakeTickets{ticket: "opaque-ticket"}, Log: zap.NewNop()}
	e := newServer(h)

	req := httptest.NewRequest(http.MethodPost, "/ticket", nil)
	req.Header.Set("X-Internal-User-Id", "user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ticket":"opaque-ticket"}`, rec.Body.String())
}

func TestIssuePropagatesStoreFailure(t *testing.T) {
	h := &TicketHandler{Tickets: fakeTickets{err: errors.New("redis down")}, Log: zap.NewNop()}
	e := newServer(h)

	req := httptest.NewRequest(http.MethodPost, "/ticket", nil)
	req.Header.Set("X-Internal-User-Id", "user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
