// Package cart is the per-session list of product ids a client has added.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"MiniShop/internal/catalog"
	"MiniShop/internal/session"
)

const maxAttempts = 3

var ErrBlankProduct = errors.New("productId is required")

// ProductFinder is the slice of catalog.Store the cart reads from.
type ProductFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]catalog.Product, error)
}

type Service struct {
	Sessions session.Store
	Products ProductFinder
}

// AddItem appends productID to the cart of sess and persists it. The product
// is not looked up. On a concurrent write the session is re-read and the
// append applied again, up to maxAttempts times. sess is updated in place.
func (s *Service) AddItem(ctx context.Context, sess *session.Data, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrBlankProduct
	}

	cur := sess.Clone()
	for attempt := 1; ; attempt++ {
		cur.Cart = append(cur.Cart, productID)

		err := s.Sessions.Update(ctx, cur)
		switch {
		case err == nil:
			*sess = *cur
			return nil
		case errors.Is(err, session.ErrNotFound):
			// expired between load and write: keep the id and the cart
			if err := s.Sessions.Create(ctx, cur); err != nil {
				return fmt.Errorf("recreate session: %w", err)
			}
			*sess = *cur
			return nil
		case !errors.Is(err, session.ErrVersionConflict):
			return fmt.Errorf("update session: %w", err)
		}

		if attempt == maxAttempts {
			return fmt.Errorf("add to cart: %w", err)
		}

		fresh, err := s.Sessions.Get(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("reload session: %w", err)
		}
		if fresh == nil {
			fresh = &session.Data{ID: sess.ID}
		}
		cur = fresh
	}
}

// ListResolved returns the products in the cart in the order they were
// added. Duplicates repeat; ids with no matching product are left out.
func (s *Service) ListResolved(ctx context.Context, sess *session.Data) ([]catalog.Product, error) {
	if sess == nil || len(sess.Cart) == 0 {
		return []catalog.Product{}, nil
	}

	found, err := s.Products.FindByIDs(ctx, sess.Cart)
	if err != nil {
		return nil, fmt.Errorf("find cart products: %w", err)
	}

	byID := make(map[string]catalog.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	out := make([]catalog.Product, 0, len(sess.Cart))
	for _, id := range sess.Cart {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
