package catalog

import "context"

// Fields are the client-writable product attributes. A nil field is absent.
type Fields struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	ImageURL    *string  `json:"imageUrl,omitempty"`
}

type Product struct {
	ID string `json:"id"`
	Fields
}

// Store is the product collection. Lookups by id report absence through the
// bool result; an id the backend cannot parse is simply absent.
type Store interface {
	Ping(ctx context.Context) error

	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, bool, error)
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)

	Create(ctx context.Context, f Fields) (Product, error)
	Update(ctx context.Context, id string, f Fields) (Product, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

func (f Fields) clone() Fields {
	return Fields{
		Name:        clonePtr(f.Name),
		Description: clonePtr(f.Description),
		Price:       clonePtr(f.Price),
		ImageURL:    clonePtr(f.ImageURL),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
