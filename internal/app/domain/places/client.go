package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

// Client talks to the upstream place provider.
type Client interface {
	TextSearch(ctx context.Context, q models.PlaceQuery) ([]models.Place, error)
	NearbySearch(ctx context.Context, q models.PlaceQuery) ([]models.Place, error)
	Details(ctx context.Context, placeID string) (*models.Place, error)
	Autocomplete(ctx context.Context, q models.PlaceQuery) ([]models.PlacePrediction, error)
	ReverseGeocode(ctx context.Context, at models.Coordinates) ([]models.GeocodeResult, error)
}

const detailFields = "place_id,name,formatted_address,geometry,rating,price_level,types,website,formatted_phone_number,business_status"

// HTTPClient speaks the Google Places web service JSON API. Reverse geocoding
// goes to the sibling geocode service under the same API root.
type HTTPClient struct {
	baseURL string
	apiRoot string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &HTTPClient{
		baseURL: baseURL,
		apiRoot: strings.TrimSuffix(baseURL, "/place"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type apiPlace struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Vicinity         string   `json:"vicinity"`
	Rating           *float64 `json:"rating"`
	PriceLevel       *int     `json:"price_level"`
	Types            []string `json:"types"`
	BusinessStatus   string   `json:"business_status"`
	Website          string   `json:"website"`
	PhoneNumber      string   `json:"formatted_phone_number"`
	Components       []struct {
		LongName string   `json:"long_name"`
		Types    []string `json:"types"`
	} `json:"address_components"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

func (p apiPlace) toModel() models.Place {
	address := p.FormattedAddress
	if address == "" {
		address = p.Vicinity
	}
	return models.Place{
		PlaceID:        p.PlaceID,
		Name:           p.Name,
		Address:        address,
		Coordinates:    models.Coordinates{Lat: p.Geometry.Location.Lat, Lng: p.Geometry.Location.Lng},
		Rating:         p.Rating,
		PriceLevel:     p.PriceLevel,
		Types:          p.Types,
		BusinessStatus: p.BusinessStatus,
		Website:        p.Website,
		PhoneNumber:    p.PhoneNumber,
	}
}

// component returns the first address component carrying one of kinds, in
// the order kinds are given.
func (p apiPlace) component(kinds ...string) string {
	for _, kind := range kinds {
		for _, c := range p.Components {
			if slices.Contains(c.Types, kind) {
				return c.LongName
			}
		}
	}
	return ""
}

func (p apiPlace) toGeocode() models.GeocodeResult {
	return models.GeocodeResult{
		PlaceID:          p.PlaceID,
		FormattedAddress: p.FormattedAddress,
		City:             p.component("locality", "postal_town", "administrative_area_level_2"),
		Country:          p.component("country"),
		Coordinates:      models.Coordinates{Lat: p.Geometry.Location.Lat, Lng: p.Geometry.Location.Lng},
		Types:            p.Types,
	}
}

type apiPrediction struct {
	PlaceID     string   `json:"place_id"`
	Description string   `json:"description"`
	Types       []string `json:"types"`
	Formatting  struct {
		MainText      string `json:"main_text"`
		SecondaryText string `json:"secondary_text"`
	} `json:"structured_formatting"`
}

type apiResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
	Results      []apiPlace      `json:"results"`
	Result       *apiPlace       `json:"result"`
	Predictions  []apiPrediction `json:"predictions"`
}

func formatLocation(c models.Coordinates) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

func (c *HTTPClient) TextSearch(ctx context.Context, q models.PlaceQuery) ([]models.Place, error) {
	params := url.Values{}
	params.Set("query", q.Text)
	if q.Near != nil {
		params.Set("location", formatLocation(*q.Near))
		params.Set("radius", strconv.Itoa(q.Radius))
	}
	resp, err := c.get(ctx, "textsearch", params)
	if err != nil {
		return nil, err
	}
	return toModels(resp.Results), nil
}

func (c *HTTPClient) NearbySearch(ctx context.Context, q models.PlaceQuery) ([]models.Place, error) {
	if q.Near == nil {
		return nil, models.NewValidationError("location", "nearby search needs a location")
	}
	params := url.Values{}
	params.Set("location", formatLocation(*q.Near))
	params.Set("radius", strconv.Itoa(q.Radius))
	if q.Keyword != "" {
		params.Set("keyword", q.Keyword)
	}
	resp, err := c.get(ctx, "nearbysearch", params)
	if err != nil {
		return nil, err
	}
	return toModels(resp.Results), nil
}

func (c *HTTPClient) Details(ctx context.Context, placeID string) (*models.Place, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailFields)
	resp, err := c.get(ctx, "details", params)
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, models.NewNotFoundError("place not found")
	}
	place := resp.Result.toModel()
	return &place, nil
}

func (c *HTTPClient) Autocomplete(ctx context.Context, q models.PlaceQuery) ([]models.PlacePrediction, error) {
	params := url.Values{}
	params.Set("input", q.Text)
	if q.Near != nil {
		params.Set("location", formatLocation(*q.Near))
		params.Set("radius", strconv.Itoa(q.Radius))
	}
	if q.Types != "" {
		params.Set("types", q.Types)
	}
	resp, err := c.get(ctx, "autocomplete", params)
	if err != nil {
		return nil, err
	}
	out := make([]models.PlacePrediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out = append(out, models.PlacePrediction{
			PlaceID:       p.PlaceID,
			Description:   p.Description,
			MainText:      p.Formatting.MainText,
			SecondaryText: p.Formatting.SecondaryText,
			Types:         p.Types,
		})
	}
	return out, nil
}

func (c *HTTPClient) ReverseGeocode(ctx context.Context, at models.Coordinates) ([]models.GeocodeResult, error) {
	params := url.Values{}
	params.Set("latlng", formatLocation(at))
	resp, err := c.get(ctx, "geocode", params)
	if err != nil {
		return nil, err
	}
	out := make([]models.GeocodeResult, 0, len(resp.Results))
	for _, p := range resp.Results {
		out = append(out, p.toGeocode())
	}
	return out, nil
}

func toModels(in []apiPlace) []models.Place {
	out := make([]models.Place, 0, len(in))
	for _, p := range in {
		out = append(out, p.toModel())
	}
	return out
}

// get issues one request. Transport failures, non-2xx codes and provider
// error statuses are all reported as upstream errors.
func (c *HTTPClient) get(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	params.Set("key", c.apiKey)
	base := c.baseURL
	if endpoint == "geocode" {
		base = c.apiRoot
	}
	reqURL := fmt.Sprintf("%s/%s/json?%s", base, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, models.NewUpstreamError("place provider unreachable", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, models.NewUpstreamError("place provider error", fmt.Errorf("%s returned HTTP %d", endpoint, res.StatusCode))
	}

	var body apiResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, models.NewUpstreamError("place provider sent an invalid response", err)
	}
	switch body.Status {
	case "OK", "ZERO_RESULTS":
		return &body, nil
	case "NOT_FOUND", "INVALID_REQUEST":
		if endpoint == "details" {
			return nil, models.NewNotFoundError("place not found")
		}
	}
	c.logger.Warn("Place provider returned an error status",
		zap.String("endpoint", endpoint),
		zap.String("status", body.Status),
		zap.String("error_message", body.ErrorMessage))
	return nil, models.NewUpstreamError("place provider error", fmt.Errorf("%s status %s", endpoint, body.Status))
}

// DisabledClient is used when no provider key is configured.
type DisabledClient struct{}

var _ Client = DisabledClient{}

var errDisabled = models.NewUpstreamError("place lookup is not configured", nil)

func (DisabledClient) TextSearch(context.Context, models.PlaceQuery) ([]models.Place, error) {
	return nil, errDisabled
}

func (DisabledClient) NearbySearch(context.Context, models.PlaceQuery) ([]models.Place, error) {
	return nil, errDisabled
}

func (DisabledClient) Details(context.Context, string) (*models.Place, error) {
	return nil, errDisabled
}

func (DisabledClient) Autocomplete(context.Context, models.PlaceQuery) ([]models.PlacePrediction, error) {
	return nil, errDisabled
}

func (DisabledClient) ReverseGeocode(context.Context, models.Coordinates) ([]models.GeocodeResult, error) {
	return nil, errDisabled
}
