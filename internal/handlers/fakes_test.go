package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"testing"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/middleware"
	"karte-backend/internal/models"
	"karte-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

var adminSession = &services.Session{Subject: "admin-1", Role: services.RoleAdmin}

// serve routes one request through a chi router so URL params resolve
func serve(h http.HandlerFunc, method, pattern, target string, body io.Reader, contentType string, session *services.Session) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if session != nil {
		req = req.WithContext(middleware.WithSession(req.Context(), session))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type formFile struct {
	part        string
	content     string
	contentType string
}

func multipartBody(t *testing.T, visitJSON string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if visitJSON != "" {
		require.NoError(t, mw.WriteField("visit", visitJSON))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="%s.jpg"`, f.part, f.part))
		ct := f.contentType
		if ct == "" {
			ct = "image/jpeg"
		}
		h.Set("Content-Type", ct)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(w, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type fakeAuth struct {
	err      error
	email    string
	password string
}

func (f *fakeAuth) Register(_ context.Context, email, password string) (*models.Admin, string, error) {
	f.email, f.password = email, password
	if f.err != nil {
		return nil, "", f.err
	}
	return &models.Admin{ID: "admin-1", Email: email}, "admin-token", nil
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*models.Admin, string, error) {
	f.email, f.password = email, password
	if f.err != nil {
		return nil, "", f.err
	}
	return &models.Admin{ID: "admin-1", Email: email}, "admin-token", nil
}

type fakeCustomers struct {
	customers map[string]*models.Customer
	query     string
	limit     int
	deleted   []string
}

func newFakeCustomers(names ...string) *fakeCustomers {
	f := &fakeCustomers{customers: make(map[string]*models.Customer)}
	for i, name := range names {
		id := fmt.Sprintf("c%d", i+1)
		f.customers[id] = &models.Customer{ID: id, DisplayName: name}
	}
	return f
}

func (f *fakeCustomers) CreateCustomer(_ context.Context, displayName string) (*models.Customer, error) {
	c := &models.Customer{ID: "new", DisplayName: displayName}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeCustomers) GetCustomer(_ context.Context, id string) (*models.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
	}
	return c, nil
}

func (f *fakeCustomers) ListCustomers(_ context.Context, query string, limit int) ([]*models.Customer, error) {
	f.query, f.limit = query, limit
	out := make([]*models.Customer, 0, len(f.customers))
	for _, c := range f.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCustomers) RenameCustomer(ctx context.Context, id, displayName string) (*models.Customer, error) {
	c, err := f.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	c.DisplayName = displayName
	return c, nil
}

func (f *fakeCustomers) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := f.GetCustomer(ctx, id); err != nil {
		return err
	}
	delete(f.customers, id)
	f.deleted = append(f.deleted, id)
	return nil
}

// savedVisit is what fakeVisits received, with uploads read into memory
type savedVisit struct {
	in     services.SaveVisitInput
	photos map[int]string
	types  map[int]string
	staff  string
}

type fakeVisits struct {
	saved     *savedVisit
	visit     *models.Visit
	photo     string
	slot      int
	deleted   bool
	urlErr    error
	deleteErr error
}

func (f *fakeVisits) SaveVisit(_ context.Context, in services.SaveVisitInput) (*models.Visit, error) {
	s := &savedVisit{in: in, photos: map[int]string{}, types: map[int]string{}}
	for slot, up := range in.Photos {
		data, err := io.ReadAll(up.Reader)
		if err != nil {
			return nil, err
		}
		s.photos[slot] = string(data)
		s.types[slot] = up.ContentType
	}
	if in.StaffPhoto != nil {
		data, err := io.ReadAll(in.StaffPhoto.Reader)
		if err != nil {
			return nil, err
		}
		s.staff = string(data)
	}
	f.saved = s

	id := in.VisitID
	if id == "" {
		id = "v-new"
	}
	v := &models.Visit{ID: id, CustomerID: in.CustomerID, VisitAt: in.Fields.VisitAt, Note: in.Fields.Note, Photos: map[string]string{}}
	for slot := range in.Photos {
		v.Photos[models.PhotoKey(slot)] = models.PhotoPath(in.CustomerID, id, slot)
	}
	return v, nil
}

func (f *fakeVisits) GetVisit(_ context.Context, customerID, visitID string) (*models.Visit, error) {
	if f.visit == nil || f.visit.ID != visitID || f.visit.CustomerID != customerID {
		return nil, fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
	}
	return f.visit, nil
}

func (f *fakeVisits) ListVisits(_ context.Context, customerID string, _ int) ([]*models.Visit, error) {
	if f.visit == nil || f.visit.CustomerID != customerID {
		return []*models.Visit{}, nil
	}
	return []*models.Visit{f.visit}, nil
}

func (f *fakeVisits) DeleteVisit(ctx context.Context, customerID, visitID string) error {
	if _, err := f.GetVisit(ctx, customerID, visitID); err != nil {
		return err
	}
	f.deleted = true
	return nil
}

func (f *fakeVisits) DeletePhoto(_ context.Context, _, _ string, slot int) error {
	f.slot = slot
	return f.deleteErr
}

func (f *fakeVisits) OpenPhoto(_ context.Context, _, _ string, slot int) (io.ReadCloser, string, error) {
	f.slot = slot
	if f.photo == "" {
		return nil, "", apperror.ErrNotFound
	}
	return io.NopCloser(bytes.NewBufferString(f.photo)), "image/png", nil
}

func (f *fakeVisits) PhotoURL(_ context.Context, customerID, visitID string, slot int) (string, time.Duration, error) {
	f.slot = slot
	if f.urlErr != nil {
		return "", 0, f.urlErr
	}
	return "https://photos.example.com/" + models.PhotoPath(customerID, visitID, slot), 15 * time.Minute, nil
}

type fakeLinks struct {
	err     error
	lastReq services.LoginRequest
}

func (f *fakeLinks) IssueToken(_ context.Context, customerID string) (*models.LinkToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.LinkToken{Code: "123456", CustomerID: customerID, CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute)}, nil
}

func (f *fakeLinks) Login(_ context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &services.LoginResult{Token: "customer-token", CustomerID: "c1"}, nil
}

type fakeViewer struct {
	visits   map[string][]*models.PublicVisit
	photo    string
	lastSlot int
}

func (f *fakeViewer) Profile(_ context.Context, customerID string) (*services.Profile, error) {
	if _, ok := f.visits[customerID]; !ok {
		return nil, apperror.ErrNotFound
	}
	return &services.Profile{ID: customerID, DisplayName: "Tanaka"}, nil
}

func (f *fakeViewer) LatestVisit(_ context.Context, customerID string) (*models.PublicVisit, error) {
	visits := f.visits[customerID]
	if len(visits) == 0 {
		return nil, nil
	}
	return visits[0], nil
}

func (f *fakeViewer) History(_ context.Context, customerID string, _ int) ([]*models.PublicVisit, error) {
	return f.visits[customerID], nil
}

func (f *fakeViewer) OpenPhoto(_ context.Context, customerID, visitID string, slot int) (io.ReadCloser, string, error) {
	f.lastSlot = slot
	for _, v := range f.visits[customerID] {
		if v.ID == visitID {
			return io.NopCloser(bytes.NewBufferString(f.photo)), "image/jpeg", nil
		}
	}
	return nil, "", apperror.ErrNotFound
}
