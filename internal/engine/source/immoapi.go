package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/engine/stream"
	"github.com/flatscout/flatscout/internal/model"
)

var validate = validator.New()

// ImmoAPI adapts a JSON listing portal of the common search-endpoint
// shape. Price and room bounds are pushed down server-side; everything
// else is left to the engine's uniform filters so results stay consistent
// across sources.
type ImmoAPI struct {
	name    string
	baseURL string
	client  *Client
	store   cache.Store
	pageTTL time.Duration
	logger  *zap.Logger
}

func NewImmoAPI(name, baseURL string, client *Client, store cache.Store, pageTTL time.Duration, logger *zap.Logger) *ImmoAPI {
	return &ImmoAPI{
		name:    name,
		baseURL: baseURL,
		client:  client,
		store:   store,
		pageTTL: pageTTL,
		logger:  logger,
	}
}

func (a *ImmoAPI) Name() string { return a.name }

func (a *ImmoAPI) Search(q Query) stream.Iterator {
	return NewPaginator(a.name, q, a.store, a.pageTTL, a.fetchPage, a.logger)
}

type apiListing struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       int      `json:"price"`
	Rooms       float64  `json:"rooms"`
	LivingSpace *float64 `json:"livingSpace"`
	Address     string   `json:"address"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Images      []string `json:"images"`
	CreatedAt   string   `json:"createdAt"`
	Category    string   `json:"category"`
	Flatmates   *int     `json:"flatmates"`
	Temporary   bool     `json:"temporary"`
	Gender      string   `json:"gender"`
	URL         string   `json:"url"`
}

type apiResponse struct {
	Results []apiListing `json:"results"`
	Paging  struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	} `json:"paging"`
}

func (a *ImmoAPI) fetchPage(ctx context.Context, place string, bucket *model.FilterBucket, page int) (Page, error) {
	params := url.Values{
		"query":     {place},
		"page":      {strconv.Itoa(page)},
		"orderBy":   {"dateCreated"},
		"direction": {"desc"},
	}
	if bucket != nil {
		if bucket.Category == model.CategorySharedRoom {
			params.Set("offerType", "shared")
		}
		setBound := func(name string, v *float64) {
			if v != nil {
				params.Set(name, strconv.FormatFloat(*v, 'f', -1, 64))
			}
		}
		setBound("priceMin", bucket.Price.Min)
		setBound("priceMax", bucket.Price.Max)
		setBound("roomsMin", bucket.Rooms.Min)
		setBound("roomsMax", bucket.Rooms.Max)
	}

	body, err := a.client.GetJSON(ctx, a.baseURL+"/search?"+params.Encode())
	if err != nil {
		return Page{}, err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("decoding %s page: %w", a.name, err)
	}

	listings := make([]model.Listing, 0, len(resp.Results))
	for _, raw := range resp.Results {
		l, err := a.normalize(raw)
		if err != nil {
			a.logger.Warn("dropping malformed listing",
				zap.String("source", a.name),
				zap.String("id", raw.ID),
				zap.Error(err))
			continue
		}
		listings = append(listings, l)
	}

	return Page{
		Listings: listings,
		HasMore:  resp.Paging.Current+1 < resp.Paging.Total,
	}, nil
}

// normalize maps a wire record onto the model and validates it before it
// may enter the engine.
func (a *ImmoAPI) normalize(raw apiListing) (model.Listing, error) {
	if raw.ID == "" {
		return model.Listing{}, fmt.Errorf("listing has no id")
	}
	l := model.Listing{
		ID:          a.name + ":" + raw.ID,
		Sources:     []model.SourceRef{{Name: a.name, URL: raw.URL}},
		Title:       raw.Title,
		Description: raw.Description,
		Price:       raw.Price,
		Rooms:       raw.Rooms,
		SizeM2:      raw.LivingSpace,
		Address:     raw.Address,
		Lat:         raw.Latitude,
		Lng:         raw.Longitude,
		Images:      raw.Images,
		Roommates:   raw.Flatmates,
		Duration:    model.DurationPermanent,
		Gender:      model.GenderAny,
	}

	switch raw.Category {
	case "shared", "room":
		l.Category = model.CategorySharedRoom
	case "apartment", "house", "":
		l.Category = model.CategoryUnit
	default:
		return model.Listing{}, fmt.Errorf("unknown category %q", raw.Category)
	}

	if raw.Temporary {
		l.Duration = model.DurationTemporary
	}
	switch raw.Gender {
	case "male":
		l.Gender = model.GenderMale
	case "female":
		l.Gender = model.GenderFemale
	}

	if raw.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			l.CreatedAt = &ts
		}
	}

	if err := validate.Struct(&l); err != nil {
		return model.Listing{}, fmt.Errorf("validating listing: %w", err)
	}
	return l, nil
}
