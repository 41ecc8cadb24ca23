// Package quota implements the API-management domain: products, the APIs
// they bundle, user subscriptions, and per-API usage accounting against a
// quota ceiling.
//
// All state lives in the injected store; the service itself is stateless
// and safe for concurrent use across any number of instances.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhalm/apiman/internal/store"
)

// DefaultQuota is the usage ceiling applied when no quota has been set
// for an API.
const DefaultQuota = 1000

// Domain rejections. Anything else returned by the service is a store
// failure and should surface as service-unavailable.
var (
	ErrProductNotFound = errors.New("product is not added")
	ErrNotSubscribed   = errors.New("user member is not subscribed")
	ErrAPINotInProduct = errors.New("api is not in product")
	ErrQuotaExceeded   = errors.New("usage quota exceeded")
)

// Key layout, kept compatible with the legacy deployment: the product
// catalog is one hash, each product's APIs live in a hash named by the
// bare product id, and subscriptions/usage/quota are namespaced keys.
const productsKey = "products"

func productKey(productID string) string {
	return productID
}

func subscriptionsKey(userID string) string {
	return "subscriptions:" + userID
}

func usageKey(userID, apiID string) string {
	return "usage:" + userID + ":" + apiID
}

func quotaKey(apiID string) string {
	return "quota:" + apiID
}

// Usage describes the outcome of a usage lookup: the resolved product and
// API alongside the current counter and effective ceiling.
type Usage struct {
	UserID      string
	APIID       string
	ProductID   string
	ProductName string
	APIDetails  string
	UsageCount  int64
	Quota       int64
}

// Service exposes the management and usage operations. Create one per
// process and share it; all methods are safe for concurrent use.
type Service struct {
	store        store.Store
	defaultQuota int64
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultQuota overrides the ceiling used for APIs without an
// explicit quota.
func WithDefaultQuota(n int64) Option {
	return func(s *Service) {
		s.defaultQuota = n
	}
}

// NewService creates a Service backed by the given store.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:        st,
		defaultQuota: DefaultQuota,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProduct upserts a product in the catalog. Re-creating an existing
// product overwrites its name (last write wins); there is no delete.
func (s *Service) CreateProduct(ctx context.Context, productID, productName string) error {
	if err := s.store.HashSet(ctx, productsKey, productID, productName); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// AddAPI attaches an API to an existing product. Returns
// ErrProductNotFound when the product has not been created.
func (s *Service) AddAPI(ctx context.Context, productID, apiID, apiDetails string) error {
	_, ok, err := s.store.HashGet(ctx, productsKey, productID)
	if err != nil {
		return fmt.Errorf("add api: %w", err)
	}
	if !ok {
		return ErrProductNotFound
	}

	if err := s.store.HashSet(ctx, productKey(productID), apiID, apiDetails); err != nil {
		return fmt.Errorf("add api: %w", err)
	}
	return nil
}

// Subscribe records a user's subscription to an existing product. Set
// semantics make re-subscribing a no-op.
func (s *Service) Subscribe(ctx context.Context, productID, userID string) error {
	_, ok, err := s.store.HashGet(ctx, productsKey, productID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if !ok {
		return ErrProductNotFound
	}

	if err := s.store.SetAdd(ctx, subscriptionsKey(userID), productID); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// resolve finds the product backing a (user, api) pair. When the user has
// multiple subscriptions an arbitrary one is consulted; only that product
// is checked for the API. Failures are reported in a fixed order:
// NotSubscribed, then ProductNotFound, then APINotInProduct.
func (s *Service) resolve(ctx context.Context, userID, apiID string) (productID, productName, apiDetails string, err error) {
	productID, ok, err := s.store.SetPick(ctx, subscriptionsKey(userID))
	if err != nil {
		return "", "", "", fmt.Errorf("resolve subscription: %w", err)
	}
	if !ok {
		return "", "", "", ErrNotSubscribed
	}

	productName, ok, err = s.store.HashGet(ctx, productsKey, productID)
	if err != nil {
		return "", "", "", fmt.Errorf("resolve product: %w", err)
	}
	if !ok {
		return "", "", "", ErrProductNotFound
	}

	apiDetails, ok, err = s.store.HashGet(ctx, productKey(productID), apiID)
	if err != nil {
		return "", "", "", fmt.Errorf("resolve api: %w", err)
	}
	if !ok {
		return "", "", "", ErrAPINotInProduct
	}

	return productID, productName, apiDetails, nil
}

// RecordUsage accounts one call against the (user, api) counter and then
// verifies the user may use the API at all.
//
// The increment is deliberately unconditional and happens before any
// check, so the counter advances even for calls that end up rejected.
// The legacy service behaved this way and callers observe it through
// CheckUsage, so it is kept. Returns the post-increment count together
// with any rejection.
func (s *Service) RecordUsage(ctx context.Context, userID, apiID string) (int64, error) {
	count, err := s.store.Incr(ctx, usageKey(userID, apiID))
	if err != nil {
		return 0, fmt.Errorf("record usage: %w", err)
	}

	if _, _, _, err := s.resolve(ctx, userID, apiID); err != nil {
		return count, err
	}
	return count, nil
}

// CheckUsage reports whether the user is still within quota for the API.
// Read-only: the counter is never touched. The quota ceiling is looked up
// per API, independent of the resolved product, and defaults when unset.
// Returns ErrQuotaExceeded once the counter has reached the ceiling.
func (s *Service) CheckUsage(ctx context.Context, userID, apiID string) (Usage, error) {
	productID, productName, apiDetails, err := s.resolve(ctx, userID, apiID)
	if err != nil {
		return Usage{}, err
	}

	count, _, err := s.store.GetInt(ctx, usageKey(userID, apiID))
	if err != nil {
		return Usage{}, fmt.Errorf("check usage: %w", err)
	}

	limit, err := s.effectiveQuota(ctx, apiID)
	if err != nil {
		return Usage{}, fmt.Errorf("check usage: %w", err)
	}

	usage := Usage{
		UserID:      userID,
		APIID:       apiID,
		ProductID:   productID,
		ProductName: productName,
		APIDetails:  apiDetails,
		UsageCount:  count,
		Quota:       limit,
	}

	if count >= limit {
		return usage, ErrQuotaExceeded
	}
	return usage, nil
}

// Authorize combines the check and the increment into one admission
// decision: the counter advances only when the user is subscribed, the
// API belongs to the product, and usage is still below quota. The
// counter-versus-ceiling step is atomic at the store, so concurrent
// callers cannot push usage past the quota the way interleaved
// CheckUsage/RecordUsage pairs can.
func (s *Service) Authorize(ctx context.Context, userID, apiID string) (Usage, error) {
	productID, productName, apiDetails, err := s.resolve(ctx, userID, apiID)
	if err != nil {
		return Usage{}, err
	}

	limit, err := s.effectiveQuota(ctx, apiID)
	if err != nil {
		return Usage{}, fmt.Errorf("authorize: %w", err)
	}

	count, allowed, err := s.store.IncrBelow(ctx, usageKey(userID, apiID), limit)
	if err != nil {
		return Usage{}, fmt.Errorf("authorize: %w", err)
	}

	usage := Usage{
		UserID:      userID,
		APIID:       apiID,
		ProductID:   productID,
		ProductName: productName,
		APIDetails:  apiDetails,
		UsageCount:  count,
		Quota:       limit,
	}

	if !allowed {
		return usage, ErrQuotaExceeded
	}
	return usage, nil
}

// SetQuota sets the usage ceiling for an API, overwriting any previous
// value. The API does not have to exist yet.
func (s *Service) SetQuota(ctx context.Context, apiID string, limit int64) error {
	if err := s.store.SetInt(ctx, quotaKey(apiID), limit); err != nil {
		return fmt.Errorf("set quota: %w", err)
	}
	return nil
}

// GetQuota returns the effective ceiling for an API and whether it is the
// default rather than an explicitly configured value.
func (s *Service) GetQuota(ctx context.Context, apiID string) (limit int64, isDefault bool, err error) {
	limit, ok, err := s.store.GetInt(ctx, quotaKey(apiID))
	if err != nil {
		return 0, false, fmt.Errorf("get quota: %w", err)
	}
	if !ok {
		return s.defaultQuota, true, nil
	}
	return limit, false, nil
}

// Healthy reports whether the backing store answers.
func (s *Service) Healthy(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) effectiveQuota(ctx context.Context, apiID string) (int64, error) {
	limit, ok, err := s.store.GetInt(ctx, quotaKey(apiID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.defaultQuota, nil
	}
	return limit, nil
}
