package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/gateway"
)

var _ artisan.Store = (*Store)(nil)

// DefaultPrefix is the mount point of the admin artisan endpoints.
const DefaultPrefix = "/admin/artisans"

// Store is an artisan.Store backed by the admin HTTP API. Every call goes
// through the gateway, so tokens are attached and renewed transparently.
type Store struct {
	client *gateway.Client
	prefix string
}

// Option customizes a Store.
type Option func(*Store)

// WithPrefix sets the path prefix for artisan endpoints. Defaults to DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewStore returns a Store that talks to the admin API through client.
func NewStore(client *gateway.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type verifyRequest struct {
	Force artisan.ForceOutcome `json:"force,omitempty"`
}

func (s *Store) FetchArtisan(ctx context.Context, id string) (*artisan.Artisan, error) {
	out := &artisan.Artisan{}
	if err := s.client.Get(ctx, s.path(id), out); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) ListArtisans(ctx context.Context, filter artisan.ListFilter) (*artisan.ListPage, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Query != "" {
		query.Set("q", filter.Query)
	}
	if filter.Page > 0 {
		query.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Size > 0 {
		query.Set("size", strconv.Itoa(filter.Size))
	}

	resp, err := s.client.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   s.prefix,
		Query:  query,
	})
	if err != nil {
		return nil, translate(err)
	}

	page := &artisan.ListPage{}
	if err := resp.Decode(page); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Store) BlockArtisan(ctx context.Context, id string) (*artisan.Artisan, error) {
	return s.action(ctx, id, "block")
}

func (s *Store) UnblockArtisan(ctx context.Context, id string) (*artisan.Artisan, error) {
	return s.action(ctx, id, "unblock")
}

func (s *Store) ApproveArtisan(ctx context.Context, id string) (*artisan.Artisan, error) {
	return s.action(ctx, id, "approve")
}

func (s *Store) VerifyIdentity(ctx context.Context, id string, force artisan.ForceOutcome) (artisan.KYC, error) {
	var kyc artisan.KYC
	if err := s.client.Post(ctx, s.path(id, "verify"), verifyRequest{Force: force}, &kyc); err != nil {
		return artisan.KYC{}, translate(err)
	}
	return kyc, nil
}

func (s *Store) RequestReupload(ctx context.Context, id string) (artisan.KYC, error) {
	var kyc artisan.KYC
	if err := s.client.Post(ctx, s.path(id, "reupload"), nil, &kyc); err != nil {
		return artisan.KYC{}, translate(err)
	}
	return kyc, nil
}

func (s *Store) action(ctx context.Context, id, verb string) (*artisan.Artisan, error) {
	out := &artisan.Artisan{}
	if err := s.client.Post(ctx, s.path(id, verb), nil, out); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) path(id string, parts ...string) string {
	p := s.prefix + "/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// ErrorEnvelope is the JSON error body written by the server.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Category string `json:"category"`
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
	Code     int    `json:"code"`
}

var knownErrors = map[string]error{
	artisan.TextCodeNotFound:             artisan.ErrNotFound,
	artisan.TextCodePreconditionFailed:   artisan.ErrPreconditionFailed,
	artisan.TextCodeInvalidTransition:    artisan.ErrInvalidTransition,
	artisan.TextCodeActionInProgress:     artisan.ErrActionInProgress,
	artisan.TextCodeInvalidVerifyOutcome: artisan.ErrInvalidOutcome,
}

// translate maps API failures back onto the artisan sentinels so callers can
// use errors.Is regardless of the Store implementation.
func translate(err error) error {
	var statusErr *gateway.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	var envelope ErrorEnvelope
	if json.Unmarshal(statusErr.Body, &envelope) == nil {
		if sentinel, ok := knownErrors[envelope.Error.TextCode]; ok {
			return fmt.Errorf("%w: %s", sentinel, envelope.Error.Message)
		}
	}

	switch statusErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", artisan.ErrNotFound, err)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %w", artisan.ErrPreconditionFailed, err)
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", artisan.ErrActionInProgress, err)
	}
	return err
}
