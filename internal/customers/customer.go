// Package customers reads the ERP customer directory through the
// authenticated API client and formats customer fields for display.
package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/florianilch/erpctl/internal/apiclient"
)

// PathCustomers is the ERP customer collection endpoint.
const PathCustomers = "/customers"

// Customer is a business customer record.
type Customer struct {
	ID                 string    `json:"id"`
	BusinessName       string    `json:"businessName"`
	RepresentativeName string    `json:"representativeName"`
	RNC                *string   `json:"rnc,omitempty"`
	Email              *string   `json:"email,omitempty"`
	Notes              *string   `json:"notes,omitempty"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// API is the subset of apiclient.Client the service reads through.
type API interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Page is one page of customers.
type Page struct {
	Customers  []Customer
	Pagination apiclient.Pagination
}

// Service lists customers.
type Service struct {
	api API
}

// NewService creates a Service reading through api.
func NewService(api API) *Service {
	return &Service{api: api}
}

// List returns every customer.
func (s *Service) List(ctx context.Context) ([]Customer, error) {
	var resp apiclient.Response[[]Customer]
	if err := s.api.GetJSON(ctx, PathCustomers, &resp); err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return resp.Data, nil
}

// Page returns page number page (1-based) of at most limit customers.
func (s *Service) Page(ctx context.Context, page, limit int) (*Page, error) {
	if page < 1 || limit < 1 {
		return nil, errors.New("page and limit must be positive")
	}

	query, err := pageQuery(page, limit)
	if err != nil {
		return nil, err
	}

	var resp apiclient.Response[[]Customer]
	if err := s.api.GetJSON(ctx, PathCustomers+"?"+query, &resp); err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}

	p := &Page{Customers: resp.Data}
	if resp.Meta.Pagination != nil {
		p.Pagination = *resp.Meta.Pagination
	} else {
		// Servers without pagination support return everything at once.
		p.Pagination = apiclient.Pagination{Page: 1, Limit: len(resp.Data), Total: len(resp.Data), TotalPages: 1}
	}
	return p, nil
}

func pageQuery(page, limit int) (string, error) {
	params := []struct {
		name  string
		value int
	}{
		{"page", page},
		{"limit", limit},
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		s, err := runtime.StyleParamWithLocation("form", true, p.name, runtime.ParamLocationQuery, p.value)
		if err != nil {
			return "", fmt.Errorf("encoding %s parameter: %w", p.name, err)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "&"), nil
}
