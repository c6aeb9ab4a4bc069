// Package web serves the HTML storefront: product pages and the session cart.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"MiniShop/internal/cart"
	"MiniShop/internal/catalog"
	"MiniShop/internal/session"
	"MiniShop/pkg/kit"
)

const maxCartBody = 64 << 10

type Server struct {
	Products catalog.Store
	Cart     *cart.Service
	Views    *Renderer
	Log      *zap.Logger
}

type listPage struct {
	Products []catalog.Product
}

type detailPage struct {
	Product *catalog.Product
}

type cartItem struct {
	ProductID string `json:"productId" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Register adds the storefront routes to r. The cart routes expect the
// session middleware to run first.
func (s *Server) Register(r chi.Router) {
	r.Get("/products", s.listProducts)
	r.Get("/products/{id}", s.showProduct)
	r.Post("/cart", s.addToCart)
	r.Get("/cart", s.showCart)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Products.List(r.Context())
	if err != nil {
		s.fail(w, r, "list products failed", err)
		return
	}
	s.render(w, r, "products", listPage{Products: products})
}

// showProduct renders the detail page; an unknown id renders the page with
// no product rather than a 404.
func (s *Server) showProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, ok, err := s.Products.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get product failed", err, zap.String("id", id))
		return
	}

	var data detailPage
	if ok {
		data.Product = &p
	}
	s.render(w, r, "productDetail", data)
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		s.fail(w, r, "cart request without session", errors.New("no session in context"))
		return
	}

	item, err := decodeCartItem(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "invalid cart item", map[string]string{"productId": err.Error()})
		return
	}

	if err := s.Cart.AddItem(r.Context(), sess, item.ProductID); err != nil {
		if errors.Is(err, cart.ErrBlankProduct) {
			kit.WriteError(w, r, http.StatusBadRequest, "invalid cart item", map[string]string{"productId": "required"})
			return
		}
		s.fail(w, r, "add to cart failed", err, zap.String("session", sess.ID))
		return
	}

	http.Redirect(w, r, "/cart", http.StatusFound)
}

func (s *Server) showCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		s.fail(w, r, "cart request without session", errors.New("no session in context"))
		return
	}

	products, err := s.Cart.ListResolved(r.Context(), sess)
	if err != nil {
		s.fail(w, r, "resolve cart failed", err, zap.String("session", sess.ID))
		return
	}
	s.render(w, r, "cart", listPage{Products: products})
}

// decodeCartItem accepts a form post (the storefront buttons) or a JSON body.
func decodeCartItem(w http.ResponseWriter, r *http.Request) (cartItem, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCartBody)

	var item cartItem
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil && !errors.Is(err, io.EOF) {
			return cartItem{}, errors.New("malformed json")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return cartItem{}, errors.New("malformed form")
		}
		item.ProductID = r.PostForm.Get("productId")
	}

	if err := validate.Struct(item); err != nil {
		return cartItem{}, errors.New("required")
	}
	return item, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, page string, data any) {
	if err := s.Views.Render(w, http.StatusOK, page, data); err != nil {
		s.fail(w, r, "render page failed", err, zap.String("page", page))
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	s.logger().Error(msg, append(fields, zap.Error(err))...)
	kit.WriteErrorPage(w, r, http.StatusInternalServerError)
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
