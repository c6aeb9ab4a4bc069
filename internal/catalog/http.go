package catalog

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiniShop/internal/events"
	"MiniShop/pkg/kit"
)

const eventTimeout = 2 * time.Second

// Server serves the JSON product API.
type Server struct {
	Store  Store
	Events events.Publisher
	Log    *zap.Logger
}

// Routes is mounted under /api/products.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.list)
	r.Post("/", s.create)
	r.Get("/{id}", s.get)
	r.Put("/{id}", s.update)
	r.Delete("/{id}", s.delete)

	return r
}

func (s *Server) CreateHandler() http.HandlerFunc { return s.create }
func (s *Server) UpdateHandler() http.HandlerFunc { return s.update }

// DeleteWithMessageHandler answers a successful delete with 200 and a
// confirmation body instead of 204.
func (s *Server) DeleteWithMessageHandler() http.HandlerFunc { return s.deleteWithMessage }

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.List(r.Context())
	if err != nil {
		s.storeFailure(w, r, "list products failed", "", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, ok, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.storeFailure(w, r, "get product failed", id, err)
		return
	}
	if !ok {
		notFound(w, r, id)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	f, err := DecodeFields(w, r)
	if err != nil {
		writeInputError(w, r, err)
		return
	}

	p, err := s.Store.Create(r.Context(), f)
	if err != nil {
		s.storeFailure(w, r, "create product failed", "", err)
		return
	}

	s.publish(r.Context(), events.New(events.ProductCreated, p.ID, p))
	kit.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f, err := DecodeFields(w, r)
	if err != nil {
		writeInputError(w, r, err)
		return
	}

	p, ok, err := s.Store.Update(r.Context(), id, f)
	if err != nil {
		s.storeFailure(w, r, "update product failed", id, err)
		return
	}
	if !ok {
		notFound(w, r, id)
		return
	}

	s.publish(r.Context(), events.New(events.ProductUpdated, p.ID, p))
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	if !s.remove(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteWithMessage(w http.ResponseWriter, r *http.Request) {
	if !s.remove(w, r) {
		return
	}
	kit.WriteJSON(w, http.StatusOK, kit.MessageResponse{Message: "Product deleted successfully"})
}

// remove deletes the product named in the path. It writes the failure
// response itself and reports whether the caller should answer success.
func (s *Server) remove(w http.ResponseWriter, r *http.Request) bool {
	id := chi.URLParam(r, "id")

	ok, err := s.Store.Delete(r.Context(), id)
	if err != nil {
		s.storeFailure(w, r, "delete product failed", id, err)
		return false
	}
	if !ok {
		notFound(w, r, id)
		return false
	}

	s.publish(r.Context(), events.New(events.ProductDeleted, id, nil))
	return true
}

// publish is best effort: a broker failure is logged but never changes the
// response of a write that already succeeded.
func (s *Server) publish(ctx context.Context, ev events.Event) {
	if s.Events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	if err := s.Events.Publish(ctx, ev); err != nil {
		s.logger().Warn("publish catalog event failed",
			zap.Error(err),
			zap.String("type", ev.Type),
			zap.String("id", ev.ProductID),
		)
	}
}

func (s *Server) storeFailure(w http.ResponseWriter, r *http.Request, msg, id string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if id != "" {
		fields = append(fields, zap.String("id", id))
	}
	s.logger().Error(msg, fields...)
	kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func notFound(w http.ResponseWriter, r *http.Request, id string) {
	kit.WriteError(w, r, http.StatusNotFound, "product not found", map[string]any{"id": id})
}

func writeInputError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		kit.WriteError(w, r, http.StatusBadRequest, "invalid product", verr.Fields)
		return
	}
	kit.WriteError(w, r, http.StatusBadRequest, "invalid product", nil)
}
