package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/place-discovery/internal/metrics"
	"github.com/jmehdipour/place-discovery/internal/model"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	ErrZeroResults    = errors.New("provider: zero results")
	ErrInvalidRequest = errors.New("provider: invalid request")
	ErrOverQuota      = errors.New("provider: over query limit")
	ErrDenied         = errors.New("provider: request denied")
	ErrUnknown        = errors.New("provider: unknown error")
	ErrNotFound       = errors.New("provider: place not found")
	ErrUnreachable    = errors.New("provider: unreachable")
)

// Client is the place-search upstream used by the discovery engine.
type Client interface {
	TextSearch(ctx context.Context, query, placeType string) ([]model.ProviderPlace, error)
	Details(ctx context.Context, placeID string) (model.ProviderPlace, error)
	Available() bool
	PhotoURL(ref string) string
}

type Options struct {
	BaseURL       string
	APIKey        string
	TimeoutMs     int
	QPS           float64
	Burst         int
	MaxConcurrent int64
	FailThreshold int
	OpenForMs     int
	PhotoMaxWidth int
}

const (
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"
	detailsFields  = "name,formatted_address,types,rating,price_level,geometry,website,formatted_phone_number,photos"
	maxBodyBytes   = 4 << 20
)

// GooglePlaces talks to the Places web service (text search, details, photos).
type GooglePlaces struct {
	baseURL  string
	apiKey   string
	photoW   int
	client   *http.Client
	circuit  *circuit
	limiter  *rate.Limiter
	inflight *semaphore.Weighted
}

var _ Client = (*GooglePlaces)(nil)

func NewGooglePlaces(o Options) *GooglePlaces {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 3000
	}
	if o.FailThreshold <= 0 {
		o.FailThreshold = 3
	}
	if o.OpenForMs <= 0 {
		o.OpenForMs = 15000
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 8
	}
	if o.PhotoMaxWidth <= 0 {
		o.PhotoMaxWidth = 400
	}
	limit := rate.Inf
	if o.QPS > 0 {
		limit = rate.Limit(o.QPS)
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}

	return &GooglePlaces{
		baseURL:  strings.TrimRight(o.BaseURL, "/"),
		apiKey:   o.APIKey,
		photoW:   o.PhotoMaxWidth,
		client:   &http.Client{Timeout: time.Duration(o.TimeoutMs) * time.Millisecond},
		circuit:  newCircuit(o.FailThreshold, time.Duration(o.OpenForMs)*time.Millisecond),
		limiter:  rate.NewLimiter(limit, o.Burst),
		inflight: semaphore.NewWeighted(o.MaxConcurrent),
	}
}

func (g *GooglePlaces) Available() bool { return g.circuit.ready() }

func (g *GooglePlaces) PhotoURL(ref string) string {
	if ref == "" {
		return ""
	}
	q := url.Values{}
	q.Set("maxwidth", strconv.Itoa(g.photoW))
	q.Set("photo_reference", ref)
	q.Set("key", g.apiKey)
	return g.baseURL + "/photo?" + q.Encode()
}

type apiPlace struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Rating           *float64 `json:"rating"`
	PriceLevel       *int     `json:"price_level"`
	Types            []string `json:"types"`
	Website          string   `json:"website"`
	Phone            string   `json:"formatted_phone_number"`
	Geometry         *struct {
		Location *struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Photos []struct {
		Reference string `json:"photo_reference"`
	} `json:"photos"`
}

func (p apiPlace) toModel() model.ProviderPlace {
	out := model.ProviderPlace{
		PlaceID:          p.PlaceID,
		Name:             p.Name,
		FormattedAddress: p.FormattedAddress,
		Rating:           p.Rating,
		PriceLevel:       p.PriceLevel,
		Types:            p.Types,
		Website:          p.Website,
		Phone:            p.Phone,
	}
	if p.Geometry != nil && p.Geometry.Location != nil {
		out.Lat, out.Lng = p.Geometry.Location.Lat, p.Geometry.Location.Lng
	}
	for _, ph := range p.Photos {
		if ph.Reference != "" {
			out.PhotoReferences = append(out.PhotoReferences, ph.Reference)
		}
	}
	return out
}

type textSearchResponse struct {
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message"`
	Results      []apiPlace `json:"results"`
}

type detailsResponse struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
	Result       apiPlace `json:"result"`
}

// TextSearch runs a free-text place search.
func (g *GooglePlaces) TextSearch(ctx context.Context, query, placeType string) ([]model.ProviderPlace, error) {
	q := url.Values{}
	q.Set("query", query)
	if placeType != "" {
		q.Set("type", placeType)
	}

	var resp textSearchResponse
	if err := g.call(ctx, "textsearch", "/textsearch/json", q, &resp); err != nil {
		return nil, err
	}
	if err := classify("textsearch", resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	out := make([]model.ProviderPlace, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Details fetches one place by provider id.
func (g *GooglePlaces) Details(ctx context.Context, placeID string) (model.ProviderPlace, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", detailsFields)

	var resp detailsResponse
	if err := g.call(ctx, "details", "/details/json", q, &resp); err != nil {
		return model.ProviderPlace{}, err
	}
	if resp.Status == "NOT_FOUND" {
		metrics.ProviderCallsTotal.WithLabelValues("details", "not_found").Inc()
		return model.ProviderPlace{}, fmt.Errorf("%w: %s", ErrNotFound, placeID)
	}
	if err := classify("details", resp.Status, resp.ErrorMessage); err != nil {
		return model.ProviderPlace{}, err
	}
	p := resp.Result.toModel()
	if p.PlaceID == "" {
		p.PlaceID = placeID
	}
	return p, nil
}

// call performs one guarded GET and decodes the JSON body into out. Only
// transport failures, timeouts and 5xx answers trip the breaker.
func (g *GooglePlaces) call(ctx context.Context, op, path string, q url.Values, out any) error {
	if !g.circuit.admit() {
		metrics.ProviderCallsTotal.WithLabelValues(op, "breaker_open").Inc()
		return fmt.Errorf("%w: circuit open", ErrUnreachable)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.circuit.report(abandoned)
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if err := g.inflight.Acquire(ctx, 1); err != nil {
		g.circuit.report(abandoned)
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer g.inflight.Release(1)

	q.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		g.circuit.report(abandoned)
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			g.circuit.report(abandoned)
		} else {
			g.circuit.report(faulty)
		}
		metrics.ProviderCallsTotal.WithLabelValues(op, "unreachable").Inc()
		return fmt.Errorf("%w: %s: %w", ErrUnreachable, op, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodyBytes))
		g.circuit.report(faulty)
		metrics.ProviderCallsTotal.WithLabelValues(op, "unreachable").Inc()
		return fmt.Errorf("%w: %s status=%d", ErrUnreachable, op, res.StatusCode)
	}
	g.circuit.report(healthy)

	if res.StatusCode/100 != 2 {
		metrics.ProviderCallsTotal.WithLabelValues(op, "http_"+strconv.Itoa(res.StatusCode)).Inc()
		if res.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s status=%d", ErrOverQuota, op, res.StatusCode)
		}
		return fmt.Errorf("%w: %s status=%d", ErrInvalidRequest, op, res.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, maxBodyBytes)).Decode(out); err != nil {
		metrics.ProviderCallsTotal.WithLabelValues(op, "bad_body").Inc()
		return fmt.Errorf("%w: %s decode: %w", ErrUnknown, op, err)
	}
	return nil
}

func classify(op, status, msg string) error {
	var err error
	switch status {
	case "OK":
		metrics.ProviderCallsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	case "ZERO_RESULTS":
		err = ErrZeroResults
	case "INVALID_REQUEST":
		err = ErrInvalidRequest
	case "OVER_QUERY_LIMIT":
		err = ErrOverQuota
	case "REQUEST_DENIED":
		err = ErrDenied
	default:
		err = ErrUnknown
	}
	metrics.ProviderCallsTotal.WithLabelValues(op, strings.ToLower(status)).Inc()
	if msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return fmt.Errorf("%w: status=%s", err, status)
}
