package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"karte-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	linkCodeLength  = 6
	linkCodeDigits  = "0123456789"
	maxCodeAttempts = 10
)

// LoginRequest is a customer login from the LIFF app. LinkToken is empty
// when the LINE user is expected to be linked already.
type LoginRequest struct {
	IDToken    string `json:"id_token"`
	LineUserID string `json:"line_user_id"`
	LinkToken  string `json:"link_token" validate:"omitempty,linktoken"`
}

// Normalize trims whitespace the LIFF form may carry around the inputs
func (r *LoginRequest) Normalize() {
	r.IDToken = strings.TrimSpace(r.IDToken)
	r.LineUserID = strings.TrimSpace(r.LineUserID)
	r.LinkToken = strings.TrimSpace(r.LinkToken)
}

// LoginResult is a minted customer session
type LoginResult struct {
	Token      string `json:"token"`
	CustomerID string `json:"customer_id"`
}

// LinkService issues link tokens and exchanges them for customer sessions
type LinkService struct {
	tokens    LinkTokenStore
	customers CustomerStore
	auth      *AuthService
	identity  *LineIdentity
	events    Publisher
	ttl       time.Duration
	now       func() time.Time
}

// NewLinkService creates a new link service
func NewLinkService(tokens LinkTokenStore, customers CustomerStore, auth *AuthService, identity *LineIdentity, events Publisher, ttl time.Duration) *LinkService {
	if events == nil {
		events = NopPublisher{}
	}
	return &LinkService{
		tokens:    tokens,
		customers: customers,
		auth:      auth,
		identity:  identity,
		events:    events,
		ttl:       ttl,
		now:       time.Now,
	}
}

// IssueToken creates a fresh 6-digit code for the customer
func (s *LinkService) IssueToken(ctx context.Context, customerID string) (*models.LinkToken, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, err
	}

	for i := 0; i < maxCodeAttempts; i++ {
		now := s.now()
		token := &models.LinkToken{
			Code:       generateCode(),
			CustomerID: customerID,
			ExpiresAt:  now.Add(s.ttl),
			CreatedAt:  now,
		}
		created, err := s.tokens.Create(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to store link token: %w", err)
		}
		if created {
			log.Info().
				Str("customer_id", customerID).
				Time("expires_at", token.ExpiresAt).
				Msg("Link token issued")
			return token, nil
		}
	}
	return nil, fmt.Errorf("failed to generate unique link token after %d attempts", maxCodeAttempts)
}

// Login resolves the LINE user and returns a customer session. Without a
// link token the LINE user must already be linked; with one, the token is
// consumed and the LINE user becomes linked to the token's customer.
func (s *LinkService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Normalize()
	lineUserID, err := s.identity.Resolve(req.IDToken, req.LineUserID)
	if err != nil {
		return nil, err
	}

	code := req.LinkToken
	var customerID string
	if code == "" {
		customer, err := s.customers.GetByLineUserID(ctx, lineUserID)
		if err != nil {
			return nil, err
		}
		customerID = customer.ID
	} else {
		customerID, err = s.tokens.Redeem(ctx, code, lineUserID, s.now())
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("customer_id", customerID).
			Msg("LINE user linked")
		s.events.Publish(Event{Type: EventCustomerUpdated, CustomerID: customerID})
	}

	token, err := s.auth.IssueSession(customerID, RoleCustomer)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, CustomerID: customerID}, nil
}

// PurgeSpent deletes used and expired tokens
func (s *LinkService) PurgeSpent(ctx context.Context) (int64, error) {
	return s.tokens.DeleteSpent(ctx, s.now())
}

// generateCode generates a random 6-digit code
func generateCode() string {
	code := make([]byte, linkCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(linkCodeDigits))))
		code[i] = linkCodeDigits[n.Int64()]
	}
	return string(code)
}
