package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// ValidationError lists the rejected input fields by their wire names.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid product: " + strings.Join(parts, "; ")
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// productBody is the JSON wire form. Keys other than these four are ignored.
// price is kept raw so that numeric strings coming from loosely typed
// clients still parse.
type productBody struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Price       json.RawMessage `json:"price"`
	ImageURL    *string         `json:"imageUrl"`
}

// priceText is a price that arrived as text: a form value or a JSON string.
type priceText struct {
	Value string `validate:"numeric"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeFields reads a create/update body, JSON or form encoded. Only types
// are checked: a field of the wrong type or a price that is not a number is
// a *ValidationError. Values themselves are not constrained.
func DecodeFields(w http.ResponseWriter, r *http.Request) (Fields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	if isForm(r) {
		return decodeForm(r)
	}
	return decodeJSON(r.Body)
}

func isForm(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

func decodeJSON(body io.Reader) (Fields, error) {
	dec := json.NewDecoder(body)

	var in productBody
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return Fields{}, nil
		}
		return Fields{}, bodyError(err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Fields{}, invalid("body", "extra data after json object")
	}

	price, err := parseRawPrice(in.Price)
	if err != nil {
		return Fields{}, err
	}

	return Fields{
		Name:        in.Name,
		Description: in.Description,
		Price:       price,
		ImageURL:    in.ImageURL,
	}, nil
}

func bodyError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return invalid(typeErr.Field, "must be a "+typeErr.Type.String())
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return invalid("body", fmt.Sprintf("larger than %d bytes", maxErr.Limit))
	}

	return invalid("body", "malformed json")
}

func parseRawPrice(raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid("price", "must be a number")
		}
		return parsePrice(s)
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, invalid("price", "must be a number")
	}
	return &v, nil
}

func parsePrice(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if err := validate.Struct(priceText{Value: s}); err != nil {
		return nil, invalid("price", "must be a number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, invalid("price", "must be a number")
	}
	return &v, nil
}

func decodeForm(r *http.Request) (Fields, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return Fields{}, invalid("body", "malformed form")
	}

	formValue := func(k string) *string {
		if _, ok := r.PostForm[k]; !ok {
			return nil
		}
		v := r.PostForm.Get(k)
		return &v
	}

	var f Fields
	f.Name = formValue("name")
	f.Description = formValue("description")
	f.ImageURL = formValue("imageUrl")

	if raw := formValue("price"); raw != nil {
		p, err := parsePrice(*raw)
		if err != nil {
			return Fields{}, err
		}
		f.Price = p
	}
	return f, nil
}
