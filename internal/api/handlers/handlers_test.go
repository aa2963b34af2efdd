package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/twocents/internal/api/middleware"
	"github.com/dvloznov/twocents/internal/api/wire"
	"github.com/dvloznov/twocents/internal/remote/inmemory"
)

func newTestHandler() http.Handler {
	mux := http.NewServeMux()
	Register(mux, inmemory.NewDatabase().Factory(), nil, zerolog.New(io.Discard))
	return middleware.Session("")(mux)
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(wire.HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTransactions(t *testing.T) {
	h := newTestHandler()

	rec := serve(t, h, http.MethodPost, "/api/transactions", `{"date":"2024-01-10","amount":-50,"category":"Groceries"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var added wire.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	assert.NotEmpty(t, added.ID)

	rec = serve(t, h, http.MethodPost, "/api/transactions", `{"amount":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodPost, "/api/transactions", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"`+added.ID+`","date":"2024-01-10","amount":-50,"category":"Groceries"}]`, rec.Body.String())

	rec = serve(t, h, http.MethodDelete, "/api/transactions/"+added.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGoals_UpdateUnknown(t *testing.T) {
	h := newTestHandler()

	rec := serve(t, h, http.MethodPatch, "/api/goals/nope", `{"current":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, http.MethodPatch, "/api/goals/nope", `{"current":"many"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodPost, "/api/goals", `{"target":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBills_AddNormalizes(t *testing.T) {
	h := newTestHandler()

	rec := serve(t, h, http.MethodPost, "/api/bills", `{"name":"Gym","amount":-30,"due_day":40}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var b wire.Bill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, 30.0, b.Amount)
	assert.Equal(t, 31, b.DueDay)
	assert.Nil(t, b.LinkedGoalID)
}

func TestSettings(t *testing.T) {
	h := newTestHandler()

	rec := serve(t, h, http.MethodPatch, "/api/settings", `{"currency":"£","ui_mode":"minimalist"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, h, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s wire.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "£", s.Currency)
	assert.Equal(t, "minimalist", s.UIMode)
	assert.Len(t, s.Categories, 4)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	h := newTestHandler()
	rec := serve(t, h, http.MethodPut, "/api/settings", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
