package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/moddengine/devstock/internal/config"
	"github.com/moddengine/devstock/internal/stock"
	"go.uber.org/zap"
)

const pixabayBaseUrl = "https://pixabay.com/api"

type PixabaySearchItem struct {
	Id            int     `json:"id"`
	PageUrl       string  `json:"pageURL"`
	Tags          string  `json:"tags"`
	PreviewUrl    string  `json:"previewURL"`
	WebFormatUrl  string  `json:"webformatURL"`
	LargeImageUrl string  `json:"largeImageURL"`
	FullHDUrl     string  `json:"fullHDURL"`
	ImageUrl      string  `json:"imageURL"`
	ImageWidth    float64 `json:"imageWidth"`
	ImageHeight   float64 `json:"imageHeight"`
	UserId        int     `json:"user_id"`
	User          string  `json:"user"`
}

type PixabaySearchResult struct {
	Total     int                 `json:"total"`
	TotalHits int                 `json:"totalHits"`
	Hits      []PixabaySearchItem `json:"hits"`
}

type PixabayApi struct {
	adapter
}

func NewPixabayApi(settings config.Source, log *zap.Logger, opts ...Option) *PixabayApi {
	return &PixabayApi{
		adapter: newAdapter(stock.Pixabay, pixabayBaseUrl, settings, log, pixabayStatus, opts),
	}
}

// Pixabay reports a bad key as 400.
func pixabayStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return stock.ErrUnauthorized
	case http.StatusTooManyRequests:
		return stock.ErrRateLimited
	}
	return nil
}

func (api *PixabayApi) PageSize(perPage int) int {
	return stock.ClampPerPage(perPage, 3, 200)
}

func (api *PixabayApi) Search(ctx context.Context, query string, page int, perPage int) (stock.SearchResult, error) {
	apiKey := api.apiKey()
	if apiKey == "" {
		return stock.SearchResult{}, api.notConfigured()
	}
	page = stock.NormalizePage(page)
	perPage = api.PageSize(perPage)
	log := api.log.With(zap.String("query", query), zap.Int("page", page))

	qParam := url.Values{}
	qParam.Add("key", apiKey)
	qParam.Add("q", query)
	qParam.Add("page", strconv.Itoa(page))
	qParam.Add("per_page", strconv.Itoa(perPage))
	qParam.Add("image_type", "photo")
	qParam.Add("safesearch", "true")

	data := PixabaySearchResult{}
	respHeader, err := api.get(ctx, log, api.baseUrl+"/?"+qParam.Encode(), nil, &data)
	if err != nil {
		return stock.SearchResult{}, err
	}

	output := make([]stock.Image, len(data.Hits))
	for i, el := range data.Hits {
		photographerUrl := ""
		if el.User != "" {
			photographerUrl = fmt.Sprintf("https://pixabay.com/users/%s-%d/", el.User, el.UserId)
		}
		output[i] = stock.Image{
			Id:              "pixabay-" + strconv.Itoa(el.Id),
			Provider:        stock.Pixabay,
			Description:     orDefault(el.Tags, query),
			Photographer:    orDefault(el.User, "Unknown"),
			PhotographerUrl: photographerUrl,
			ThumbnailUrl:    firstOf(el.PreviewUrl, el.WebFormatUrl, el.LargeImageUrl),
			PreviewUrl:      firstOf(el.WebFormatUrl, el.LargeImageUrl, el.PreviewUrl),
			DownloadUrls: stock.DownloadURLs{
				Small:    el.PreviewUrl,
				Medium:   el.WebFormatUrl,
				Large:    el.LargeImageUrl,
				Original: firstOf(el.FullHDUrl, el.ImageUrl, el.LargeImageUrl),
			}.Filled(),
			Width:     nonNegative(el.ImageWidth),
			Height:    nonNegative(el.ImageHeight),
			SourceUrl: el.PageUrl,
			Color:     "#333333",
		}
	}

	log.Debug("Search complete", zap.Int("results", len(output)), zap.Int("total", data.TotalHits))
	return stock.SearchResult{
		Images:       output,
		TotalResults: data.TotalHits,
		TotalPages:   stock.TotalPages(data.TotalHits, perPage),
		CurrentPage:  page,
		Provider:     stock.Pixabay,
		RateLimit:    rateLimit(respHeader, true),
	}, nil
}
