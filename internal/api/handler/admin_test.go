package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/windgrid/windgrid/internal/api/handler"
	"github.com/windgrid/windgrid/internal/worker"
)

func TestAdminHandler_Refresh(t *testing.T) {
	sched := newFakeScheduler(worker.Snapshot{})
	h := handler.NewAdminHandler(sched, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/refresh", http.NoBody))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued":true}`, rec.Body.String())
	assert.Equal(t, 1, sched.refreshes)

	sched.queued = false
	rec = httptest.NewRecorder()
	h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/refresh", http.NoBody))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued":false}`, rec.Body.String())
}
