package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/models"
	"karte-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var customerSession = &services.Session{Subject: "c1", Role: services.RoleCustomer}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{
		visits: map[string][]*models.PublicVisit{
			"c1": {{
				ID:         "v2",
				VisitAt:    time.Date(2025, 2, 10, 15, 0, 0, 0, time.UTC),
				Note:       "cut",
				Photos:     map[string]string{"after1Path": models.PhotoPath("c1", "v2", 1)},
				PhotoCount: 1,
			}},
			"c2": {},
		},
		photo: "jpeg-bytes",
	}
}

func TestMeHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		linkErr    error
		expectCode int
		expectBody string
	}{
		{
			name:       "link with code",
			body:       `{"line_user_id":"U1","link_token":"123456"}`,
			expectCode: http.StatusOK,
			expectBody: `{"token":"customer-token","customer_id":"c1"}`,
		},
		{
			name:       "linked user without code",
			body:       `{"line_user_id":"U1"}`,
			expectCode: http.StatusOK,
			expectBody: `{"token":"customer-token","customer_id":"c1"}`,
		},
		{
			name:       "malformed code",
			body:       `{"line_user_id":"U1","link_token":"12ab"}`,
			expectCode: http.StatusBadRequest,
			expectBody: `{"error":"validation failed","fields":[{"link_token":"must be 6 digits"}]}`,
		},
		{
			name:       "wrong or expired code",
			body:       `{"line_user_id":"U1","link_token":"654321"}`,
			linkErr:    apperror.ErrInvalidLinkToken,
			expectCode: http.StatusUnauthorized,
			expectBody: `{"error":"link token is wrong or expired"}`,
		},
		{
			name:       "not linked",
			body:       `{"line_user_id":"U1"}`,
			linkErr:    fmt.Errorf("line user: %w", apperror.ErrNotLinked),
			expectCode: http.StatusUnauthorized,
			expectBody: `{"error":"line user is not linked to a customer"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := &fakeLinks{err: tt.linkErr}
			h := NewMeHandler(links, newFakeViewer(), apperror.NewValidator())

			rec := serve(h.Login, http.MethodPost, "/api/v1/customer/login", "/api/v1/customer/login",
				strings.NewReader(tt.body), "application/json", nil)

			assert.Equal(t, tt.expectCode, rec.Code)
			assert.JSONEq(t, tt.expectBody, rec.Body.String())
		})
	}
}

func TestMeHandler_ReadsAreScopedToSession(t *testing.T) {
	viewer := newFakeViewer()
	h := NewMeHandler(&fakeLinks{}, viewer, apperror.NewValidator())

	rec := serve(h.Profile, http.MethodGet, "/api/v1/me", "/api/v1/me", nil, "", customerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"c1","display_name":"Tanaka"}`, rec.Body.String())

	rec = serve(h.LatestVisit, http.MethodGet, "/api/v1/me/visits/latest", "/api/v1/me/visits/latest", nil, "", customerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"v2"`)
	assert.Contains(t, rec.Body.String(), `"photo_count":1`)

	rec = serve(h.History, http.MethodGet, "/api/v1/me/visits", "/api/v1/me/visits", nil, "", customerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"visits":[{"id":"v2"`)

	other := &services.Session{Subject: "c2", Role: services.RoleCustomer}
	rec = serve(h.LatestVisit, http.MethodGet, "/api/v1/me/visits/latest", "/api/v1/me/visits/latest", nil, "", other)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"visit":null}`, rec.Body.String())
}

func TestMeHandler_Photo(t *testing.T) {
	viewer := newFakeViewer()
	h := NewMeHandler(&fakeLinks{}, viewer, apperror.NewValidator())
	pattern := "/api/v1/me/visits/{visitId}/photos/{slot}"

	rec := serve(h.Photo, http.MethodGet, pattern, "/api/v1/me/visits/v2/photos/1", nil, "", customerSession)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
	assert.Equal(t, 1, viewer.lastSlot)

	viewer.lastSlot = -1
	rec = serve(h.Photo, http.MethodGet, pattern, "/api/v1/me/visits/v2/photos/staff", nil, "", customerSession)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, -1, viewer.lastSlot)

	other := &services.Session{Subject: "c2", Role: services.RoleCustomer}
	rec = serve(h.Photo, http.MethodGet, pattern, "/api/v1/me/visits/v2/photos/1", nil, "", other)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMeHandler_LoginTrimsLinkToken(t *testing.T) {
	links := &fakeLinks{}
	h := NewMeHandler(links, newFakeViewer(), apperror.NewValidator())

	rec := serve(h.Login, http.MethodPost, "/api/v1/customer/login", "/api/v1/customer/login",
		strings.NewReader(`{"line_user_id":" U1 ","link_token":" 123456\n"}`), "application/json", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "123456", links.lastReq.LinkToken)
	assert.Equal(t, "U1", links.lastReq.LineUserID)
}
