package artisan

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Store is the data access layer consumed by the workflow. Implementations may
// be backed by memory, a database, or a remote API.
type Store interface {
	FetchArtisan(ctx context.Context, id string) (*Artisan, error)
	ListArtisans(ctx context.Context, filter ListFilter) (*ListPage, error)
	BlockArtisan(ctx context.Context, id string) (*Artisan, error)
	UnblockArtisan(ctx context.Context, id string) (*Artisan, error)
	ApproveArtisan(ctx context.Context, id string) (*Artisan, error)
	VerifyIdentity(ctx context.Context, id string, force ForceOutcome) (KYC, error)
	RequestReupload(ctx context.Context, id string) (KYC, error)
}

// ListFilter narrows ListArtisans results.
type ListFilter struct {
	Status Status
	Query  string
	Page   int
	Size   int
}

// ListPage is a page of artisans.
type ListPage struct {
	Items      []*Artisan `json:"items"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
}

const (
	DefaultPageSize = 15
	MaxPageSize     = 100
)

func (f ListFilter) normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
	return f
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ARTISAN "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ARTISAN "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ARTISAN "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ARTISAN "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// NopLogger discards every message.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
