package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/models"
)

// memDB is an in-memory stand-in for the Postgres repositories.
type memDB struct {
	mu        sync.Mutex
	customers map[string]*models.Customer
	visits    map[string]*models.Visit
	tokens    map[string]*models.LinkToken
	admins    map[string]*models.Admin
}

func newMemDB() *memDB {
	return &memDB{
		customers: make(map[string]*models.Customer),
		visits:    make(map[string]*models.Visit),
		tokens:    make(map[string]*models.LinkToken),
		admins:    make(map[string]*models.Admin),
	}
}

func copyVisit(v *models.Visit) *models.Visit {
	c := *v
	c.Photos = make(map[string]string, len(v.Photos))
	for k, p := range v.Photos {
		c.Photos[k] = p
	}
	if v.StaffOnly.StaffPhotoPath != nil {
		p := *v.StaffOnly.StaffPhotoPath
		c.StaffOnly.StaffPhotoPath = &p
	}
	return &c
}

type memCustomers struct{ db *memDB }

func (m memCustomers) Create(_ context.Context, c *models.Customer) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *c
	m.db.customers[c.ID] = &cp
	return nil
}

func (m memCustomers) GetByID(_ context.Context, id string) (*models.Customer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
	}
	cp := *c
	cp.Linked = c.LineUserID != nil
	return &cp, nil
}

func (m memCustomers) GetByLineUserID(_ context.Context, lineUserID string) (*models.Customer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, c := range m.db.customers {
		if c.LineUserID != nil && *c.LineUserID == lineUserID {
			cp := *c
			cp.Linked = true
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("line user: %w", apperror.ErrNotLinked)
}

func (m memCustomers) List(_ context.Context, nameQuery string, limit int) ([]*models.Customer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	q := strings.ToLower(nameQuery)
	out := make([]*models.Customer, 0, len(m.db.customers))
	for _, c := range m.db.customers {
		if !strings.Contains(strings.ToLower(c.DisplayName), q) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastVisitAt, out[j].LastVisitAt
		switch {
		case a == nil && b == nil:
			return out[i].DisplayName < out[j].DisplayName
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memCustomers) UpdateDisplayName(_ context.Context, id, name string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.customers[id]
	if !ok {
		return fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
	}
	c.DisplayName = name
	c.UpdatedAt = at
	return nil
}

func (m memCustomers) RefreshLatestVisit(_ context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.customers[id]
	if !ok {
		return fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
	}
	c.LastVisitAt, c.LatestVisitID = nil, nil
	for _, v := range m.db.visits {
		if v.CustomerID != id {
			continue
		}
		if c.LastVisitAt == nil || v.VisitAt.After(*c.LastVisitAt) {
			at, vid := v.VisitAt, v.ID
			c.LastVisitAt, c.LatestVisitID = &at, &vid
		}
	}
	return nil
}

func (m memCustomers) Delete(_ context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.customers[id]; !ok {
		return fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
	}
	delete(m.db.customers, id)
	for vid, v := range m.db.visits {
		if v.CustomerID == id {
			delete(m.db.visits, vid)
		}
	}
	for code, t := range m.db.tokens {
		if t.CustomerID == id {
			delete(m.db.tokens, code)
		}
	}
	return nil
}

type memVisits struct{ db *memDB }

func (m memVisits) Create(_ context.Context, v *models.Visit) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.visits[v.ID] = copyVisit(v)
	return nil
}

func (m memVisits) Update(_ context.Context, v *models.Visit) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cur, ok := m.db.visits[v.ID]
	if !ok || cur.CustomerID != v.CustomerID {
		return fmt.Errorf("visit %s: %w", v.ID, apperror.ErrNotFound)
	}
	next := copyVisit(v)
	next.Photos = cur.Photos
	next.StaffOnly = cur.StaffOnly
	next.LengthSide, next.LengthBack = cur.LengthSide, cur.LengthBack
	next.CreatedAt, next.CreatedBy = cur.CreatedAt, cur.CreatedBy
	m.db.visits[v.ID] = next
	return nil
}

func (m memVisits) GetByID(_ context.Context, customerID, visitID string) (*models.Visit, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	v, ok := m.db.visits[visitID]
	if !ok || v.CustomerID != customerID {
		return nil, fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
	}
	return copyVisit(v), nil
}

func (m memVisits) ListByCustomer(_ context.Context, customerID string, limit int) ([]*models.Visit, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*models.Visit
	for _, v := range m.db.visits {
		if v.CustomerID == customerID {
			out = append(out, copyVisit(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitAt.After(out[j].VisitAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memVisits) SetPhotos(_ context.Context, customerID, visitID string, photos map[string]string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	v, ok := m.db.visits[visitID]
	if !ok || v.CustomerID != customerID {
		return fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
	}
	v.Photos = make(map[string]string, len(photos))
	for k, p := range photos {
		v.Photos[k] = p
	}
	v.UpdatedAt = at
	return nil
}

func (m memVisits) SetStaffPhoto(_ context.Context, customerID, visitID string, path *string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	v, ok := m.db.visits[visitID]
	if !ok || v.CustomerID != customerID {
		return fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
	}
	v.StaffOnly.StaffPhotoPath = path
	v.UpdatedAt = at
	return nil
}

func (m memVisits) Delete(_ context.Context, customerID, visitID string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	v, ok := m.db.visits[visitID]
	if !ok || v.CustomerID != customerID {
		return fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
	}
	delete(m.db.visits, visitID)
	return nil
}

type memTokens struct{ db *memDB }

func (m memTokens) Create(_ context.Context, t *models.LinkToken) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if cur, ok := m.db.tokens[t.Code]; ok && cur.UsedAt == nil && cur.ExpiresAt.After(t.CreatedAt) {
		return false, nil
	}
	cp := *t
	m.db.tokens[t.Code] = &cp
	return true, nil
}

func (m memTokens) Redeem(_ context.Context, code, lineUserID string, now time.Time) (string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tokens[code]
	if !ok || t.UsedAt != nil || !t.ExpiresAt.After(now) {
		return "", apperror.ErrInvalidLinkToken
	}
	t.UsedAt = &now
	t.UsedByLineUserID = &lineUserID
	for _, c := range m.db.customers {
		if c.LineUserID != nil && *c.LineUserID == lineUserID && c.ID != t.CustomerID {
			c.LineUserID = nil
		}
	}
	if c, ok := m.db.customers[t.CustomerID]; ok {
		uid := lineUserID
		c.LineUserID = &uid
	}
	return t.CustomerID, nil
}

func (m memTokens) DeleteSpent(_ context.Context, now time.Time) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for code, t := range m.db.tokens {
		if t.UsedAt != nil || !t.ExpiresAt.After(now) {
			delete(m.db.tokens, code)
			n++
		}
	}
	return n, nil
}

type memAdmins struct{ db *memDB }

func (m memAdmins) Create(_ context.Context, a *models.Admin) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, cur := range m.db.admins {
		if cur.Email == a.Email {
			return fmt.Errorf("admin %s already exists: %w", a.Email, apperror.ErrConflict)
		}
	}
	cp := *a
	m.db.admins[a.ID] = &cp
	return nil
}

func (m memAdmins) GetByEmail(_ context.Context, email string) (*models.Admin, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, a := range m.db.admins {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("admin: %w", apperror.ErrNotFound)
}

func (m memAdmins) GetByID(_ context.Context, id string) (*models.Admin, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.admins[id]
	if !ok {
		return nil, fmt.Errorf("admin: %w", apperror.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// memPhotos is an in-memory photostore.Store.
type memPhotos struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPut  map[string]bool
	failDel  map[string]bool
	failAll  bool
	putCalls int
	delCalls int
}

func newMemPhotos() *memPhotos {
	return &memPhotos{
		objects: make(map[string][]byte),
		failPut: make(map[string]bool),
		failDel: make(map[string]bool),
	}
}

func (s *memPhotos) Put(_ context.Context, key, _ string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.failAll || s.failPut[key] {
		return errors.New("upload failed")
	}
	s.objects[key] = data
	return nil
}

func (s *memPhotos) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("photo %s: %w", key, apperror.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), "image/jpeg", nil
}

func (s *memPhotos) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delCalls++
	if s.failDel[key] {
		return errors.New("delete failed")
	}
	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("photo %s: %w", key, apperror.ErrNotFound)
	}
	delete(s.objects, key)
	return nil
}

func (s *memPhotos) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *memPhotos) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// presigningPhotos adds PresignGet to memPhotos.
type presigningPhotos struct {
	*memPhotos
}

func (p presigningPhotos) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://photos.example.com/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fixedClock returns a controllable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func jpeg(data string) Upload {
	return Upload{Reader: bytes.NewReader([]byte(data)), ContentType: "image/jpeg"}
}
