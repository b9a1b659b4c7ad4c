package remote

import (
	"context"
	"net/http"
	"net/url"

	"bairro/internal/models"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type LoginRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

type LoginData struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	User         *models.User `json:"user"`
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	var env envelope
	if err := c.Do(ctx, http.MethodGet, "/categories", nil, &env); err != nil {
		return nil, err
	}
	if err := ensureSuccess(env); err != nil {
		return nil, err
	}
	var categories []models.Category
	if err := decodeData(env, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) Businesses(ctx context.Context, filter models.BusinessFilter) ([]models.Business, error) {
	var env envelope
	path := "/businesses" + queryString(filter.Params())
	if err := c.Do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if err := ensureSuccess(env); err != nil {
		return nil, err
	}
	var businesses []models.Business
	if err := decodeData(env, &businesses); err != nil {
		return nil, err
	}
	return businesses, nil
}

func (c *Client) BusinessByID(ctx context.Context, id string) (*models.Business, error) {
	var env envelope
	if err := c.Do(ctx, http.MethodGet, "/businesses/"+url.PathEscape(id), nil, &env); err != nil {
		return nil, err
	}
	if err := ensureSuccess(env); err != nil {
		return nil, err
	}
	var business models.Business
	if err := decodeData(env, &business); err != nil {
		return nil, err
	}
	return &business, nil
}

func (c *Client) BusinessesByCategory(ctx context.Context, category string) ([]models.Business, error) {
	return c.businessList(ctx, "/businesses/category/"+url.PathEscape(category))
}

func (c *Client) BusinessesBySubcategory(ctx context.Context, subcategory string) ([]models.Business, error) {
	return c.businessList(ctx, "/businesses/subcategory/"+url.PathEscape(subcategory))
}

// SearchBusinesses returns the matches for q. The API answers 404 for an
// empty result set; that is mapped to an empty slice, not an error.
func (c *Client) SearchBusinesses(ctx context.Context, q string) ([]models.Business, error) {
	path := "/businesses/search" + queryString(map[string]string{"q": q})
	businesses, err := c.businessList(ctx, path)
	if err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return businesses, nil
}

func (c *Client) businessList(ctx context.Context, path string) ([]models.Business, error) {
	var env envelope
	if err := c.Do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if err := ensureSuccess(env); err != nil {
		return nil, err
	}
	var businesses []models.Business
	if err := decodeData(env, &businesses); err != nil {
		return nil, err
	}
	return businesses, nil
}

func (c *Client) CreateBusiness(ctx context.Context, business *models.Business) (*models.Business, error) {
	var env envelope
	if err := c.Do(ctx, http.MethodPost, "/businesses", business, &env); err != nil {
		return nil, err
	}
	if err := ensureSuccess(env); err != nil {
		return nil, err
	}
	var created models.Business
	if err := decodeData(env, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateBusiness(ctx context.Context, id string, business *models.Business) (*models.Business, error) {
	var env envelope
	if err := c.Do(ctx, http.MethodPut, "/businesses/"+url.PathEscape(id), business, &env); err != nil {
		return nil, err
	}
	if err := ensureSuccess(env); err != nil {
		return nil, err
	}
	var updated models.Business
	if err := decodeData(env, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) DeleteBusiness(ctx context.Context, id string) error {
	var env envelope
	if err := c.Do(ctx, http.MethodDelete, "/businesses/"+url.PathEscape(id), nil, &env); err != nil {
		return err
	}
	return ensureSuccess(env)
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginData, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &env); err != nil {
		return nil, err
	}
	if err := ensureSuccess(env); err != nil {
		return nil, err
	}
	var data LoginData
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) VerifyToken(ctx context.Context, token string) (bool, error) {
	var env envelope
	body := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, "/auth/verify", body, &env); err != nil {
		if IsAuthExpired(err) {
			return false, nil
		}
		return false, err
	}
	return env.Success, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*LoginData, error) {
	var env envelope
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, &env); err != nil {
		return nil, err
	}
	if err := ensureSuccess(env); err != nil {
		return nil, err
	}
	var data LoginData
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) Logout(ctx context.Context) error {
	var env envelope
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, &env)
}
