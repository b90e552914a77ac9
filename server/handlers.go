package server

import (
	"context"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-artisan"
)

type loginPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (p loginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Identifier, validation.Required, validation.Length(1, 254)),
		validation.Field(&p.Password, validation.Required, validation.Length(1, 128)),
	)
}

type refreshPayload struct {
	RefreshToken string `json:"refreshToken"`
}

func (p refreshPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RefreshToken, validation.Required),
	)
}

type verifyPayload struct {
	Force string `json:"force"`
}

func (p verifyPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Force, validation.In(
			string(artisan.ForceSuccess),
			string(artisan.ForceFail),
		)),
	)
}

type listQuery struct {
	Status string
	Query  string
	Page   int
	Size   int
}

func (q listQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Status, validation.In(
			string(artisan.StatusPending),
			string(artisan.StatusActive),
			string(artisan.StatusBlocked),
		)),
		validation.Field(&q.Query, validation.Length(0, 100)),
		validation.Field(&q.Page, validation.Min(0)),
		validation.Field(&q.Size, validation.Min(0), validation.Max(artisan.MaxPageSize)),
	)
}

type profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (p profile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Email, is.Email),
	)
}

func parseBody(c *fiber.Ctx, out interface{ Validate() error }) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(out); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	return out.Validate()
}

func (s *Server) login(c *fiber.Ctx) error {
	payload := new(loginPayload)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	ip := c.IP()
	if !s.limiter.Allow(ip, payload.Identifier) {
		s.logger.Warn("login throttled ip=%s identifier=%s", ip, payload.Identifier)
		return ErrTooManyLoginAttempts
	}

	account, err := s.accounts.FindByIdentifier(c.UserContext(), payload.Identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := ComparePasswordAndHash(payload.Password, account.PasswordHash); err != nil {
		return err
	}
	s.limiter.Reset(ip, payload.Identifier)

	pair, err := s.tokens.Issue(account)
	if err != nil {
		return err
	}
	s.logger.Info("admin %s signed in", account.ID)
	return c.JSON(pair)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	payload := new(refreshPayload)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	claims, err := s.tokens.Validate(payload.RefreshToken, TokenTypeRefresh)
	if err != nil {
		return err
	}
	account, err := s.accounts.FindByID(c.UserContext(), claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	pair, err := s.tokens.IssueAccess(account)
	if err != nil {
		return err
	}
	return c.JSON(pair)
}

func (s *Server) me(c *fiber.Ctx) error {
	claims, ok := ClaimsFromCtx(c)
	if !ok {
		return ErrMissingToken
	}
	account, err := s.accounts.FindByID(c.UserContext(), claims.Subject)
	if err != nil {
		return err
	}
	out := profile{ID: account.ID, Email: account.Email, Name: account.Name, Role: account.Role}
	if err := out.Validate(); err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *Server) listArtisans(c *fiber.Ctx) error {
	q := listQuery{
		Status: c.Query("status"),
		Query:  c.Query("q"),
		Page:   c.QueryInt("page", 0),
		Size:   c.QueryInt("size", 0),
	}
	if status, ok := artisan.ParseStatus(q.Status); ok {
		q.Status = string(status)
	}
	if err := q.Validate(); err != nil {
		return err
	}

	page, err := s.store.ListArtisans(c.UserContext(), artisan.ListFilter{
		Status: artisan.Status(q.Status),
		Query:  q.Query,
		Page:   q.Page,
		Size:   q.Size,
	})
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) getArtisan(c *fiber.Ctx) error {
	record, err := s.store.FetchArtisan(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (s *Server) blockArtisan(c *fiber.Ctx) error {
	return s.statusAction(c, s.store.BlockArtisan)
}

func (s *Server) unblockArtisan(c *fiber.Ctx) error {
	return s.statusAction(c, s.store.UnblockArtisan)
}

func (s *Server) approveArtisan(c *fiber.Ctx) error {
	return s.statusAction(c, s.store.ApproveArtisan)
}

func (s *Server) verifyArtisan(c *fiber.Ctx) error {
	payload := new(verifyPayload)
	if err := parseBody(c, payload); err != nil {
		return err
	}
	kyc, err := s.store.VerifyIdentity(c.UserContext(), c.Params("id"), artisan.ForceOutcome(payload.Force))
	if err != nil {
		return err
	}
	return c.JSON(kyc)
}

func (s *Server) requestReupload(c *fiber.Ctx) error {
	kyc, err := s.store.RequestReupload(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(kyc)
}

func (s *Server) statusAction(c *fiber.Ctx, fn func(ctx context.Context, id string) (*artisan.Artisan, error)) error {
	record, err := fn(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if claims, ok := ClaimsFromCtx(c); ok {
		s.logger.Info("admin %s moved artisan %s to %s", claims.Subject, record.ID, record.Status)
	}
	return c.JSON(record)
}
