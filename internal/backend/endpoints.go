package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/pkg/models"
)

// NewProduct is the creation payload. Price is USD. When ImageFile is set
// the product is sent as multipart/form-data, otherwise as JSON with Image
// as a remote URL.
type NewProduct struct {
	Name       string          `json:"name"`
	Category   models.Category `json:"category"`
	ExpiryDate string          `json:"expiryDate"`
	Price      *float64        `json:"price,omitempty"`
	Weight     *float64        `json:"weight,omitempty"`
	Unit       models.Unit     `json:"unit,omitempty"`
	Image      string          `json:"image,omitempty"`
	Barcode    string          `json:"barcode,omitempty"`
	ImageFile  *File           `json:"-"`
}

func (p NewProduct) multipart() *infra.Multipart {
	m := infra.NewMultipart().
		Field("name", p.Name).
		Field("category", string(p.Category)).
		Field("expiryDate", p.ExpiryDate).
		Field("unit", string(p.Unit)).
		Field("barcode", p.Barcode)
	if p.Price != nil {
		m.Field("price", strconv.FormatFloat(*p.Price, 'f', 2, 64))
	}
	if p.Weight != nil {
		m.Field("weight", strconv.FormatFloat(*p.Weight, 'f', -1, 64))
	}
	return m.File("image", *p.ImageFile)
}

// LookupBarcode resolves a scanned code to product metadata. Results are
// cached for ten minutes.
func (c *Client) LookupBarcode(ctx context.Context, code string) (models.BarcodeLookup, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.BarcodeLookup{}, ErrEmptyBarcode
	}
	if hit, ok := c.lookups.Get(code); ok {
		c.logger.Debug("barcode cache hit", zap.String("code", code))
		return hit, nil
	}

	var out models.BarcodeLookup
	if err := c.do(ctx, http.MethodGet, "/products/scan/barcode/"+url.PathEscape(code), nil, &out); err != nil {
		return models.BarcodeLookup{}, err
	}
	c.lookups.Set(code, out)
	return out, nil
}

// PredictImage asks the spoilage model for an expiry estimate.
func (c *Client) PredictImage(ctx context.Context, img File) (models.ImagePrediction, error) {
	var out models.ImagePrediction
	err := c.do(ctx, http.MethodPost, "/products/predict-image", infra.NewMultipart().File("image", img), &out)
	return out, err
}

// CreateProduct stores a new product. A stored barcode drops its cached
// lookup, since the backend may now answer it from the user's own product.
func (c *Client) CreateProduct(ctx context.Context, p NewProduct) (models.Product, error) {
	var body any = p
	if p.ImageFile != nil {
		body = p.multipart()
	}
	var out models.Product
	if err := c.do(ctx, http.MethodPost, "/products", body, &out); err != nil {
		return out, err
	}
	if code := strings.TrimSpace(p.Barcode); code != "" {
		c.lookups.Invalidate(code)
	}
	return out, nil
}

// ListProducts returns the signed-in user's products.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := c.do(ctx, http.MethodGet, "/products", nil, &out)
	return out, err
}

// ListPlans returns the available subscription plans.
func (c *Client) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var out []models.Plan
	err := c.do(ctx, http.MethodGet, "/plans", nil, &out)
	return out, err
}

// Login exchanges credentials for a token. A 401 here is a bad password,
// not an expired session.
func (c *Client) Login(ctx context.Context, email, password string) (models.AuthResponse, error) {
	var out models.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, name, email, password string) (models.AuthResponse, error) {
	var out models.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}
