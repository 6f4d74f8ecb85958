package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/moddengine/devstock/internal/config"
	"github.com/moddengine/devstock/internal/stock"
	"go.uber.org/zap"
)

const pexelsBaseUrl = "https://api.pexels.com/v1"

type PexelsPhoto struct {
	Id              int            `json:"id"`
	Width           float64        `json:"width"`
	Height          float64        `json:"height"`
	Url             string         `json:"url"`
	Alt             string         `json:"alt"`
	AvgColor        string         `json:"avg_color"`
	Photographer    string         `json:"photographer"`
	PhotographerUrl string         `json:"photographer_url"`
	PhotographerId  int            `json:"photographer_id"`
	Src             PexelsPhotoSrc `json:"src"`
}

type PexelsPhotoSrc struct {
	Original string `json:"original"`
	Large2x  string `json:"large2x"`
	Large    string `json:"large"`
	Medium   string `json:"medium"`
	Small    string `json:"small"`
	Tiny     string `json:"tiny"`
}

type PexelsSearchResult struct {
	TotalResults int           `json:"total_results"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Photos       []PexelsPhoto `json:"photos"`
}

type PexelsApi struct {
	adapter
}

func NewPexelsApi(settings config.Source, log *zap.Logger, opts ...Option) *PexelsApi {
	return &PexelsApi{
		adapter: newAdapter(stock.Pexels, pexelsBaseUrl, settings, log, pexelsStatus, opts),
	}
}

func pexelsStatus(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return stock.ErrUnauthorized
	case http.StatusTooManyRequests:
		return stock.ErrRateLimited
	}
	return nil
}

func (api *PexelsApi) PageSize(perPage int) int {
	return stock.ClampPerPage(perPage, 1, 80)
}

func (api *PexelsApi) Search(ctx context.Context, query string, page int, perPage int) (stock.SearchResult, error) {
	apiKey := api.apiKey()
	if apiKey == "" {
		return stock.SearchResult{}, api.notConfigured()
	}
	page = stock.NormalizePage(page)
	perPage = api.PageSize(perPage)
	log := api.log.With(zap.String("query", query), zap.Int("page", page))

	qParam := url.Values{}
	qParam.Add("query", query)
	qParam.Add("page", strconv.Itoa(page))
	qParam.Add("per_page", strconv.Itoa(perPage))
	header := http.Header{}
	header.Set("Authorization", apiKey)

	data := PexelsSearchResult{}
	respHeader, err := api.get(ctx, log, api.baseUrl+"/search?"+qParam.Encode(), header, &data)
	if err != nil {
		return stock.SearchResult{}, err
	}

	output := make([]stock.Image, len(data.Photos))
	for i, el := range data.Photos {
		output[i] = stock.Image{
			Id:              "pexels-" + strconv.Itoa(el.Id),
			Provider:        stock.Pexels,
			Description:     orDefault(el.Alt, query),
			Photographer:    orDefault(el.Photographer, "Unknown"),
			PhotographerUrl: el.PhotographerUrl,
			ThumbnailUrl:    firstOf(el.Src.Tiny, el.Src.Small, el.Src.Medium, el.Src.Large, el.Src.Original),
			PreviewUrl:      firstOf(el.Src.Medium, el.Src.Large, el.Src.Small, el.Src.Large2x, el.Src.Original),
			DownloadUrls: stock.DownloadURLs{
				Small:    el.Src.Small,
				Medium:   el.Src.Medium,
				Large:    firstOf(el.Src.Large2x, el.Src.Large),
				Original: el.Src.Original,
			}.Filled(),
			Width:     nonNegative(el.Width),
			Height:    nonNegative(el.Height),
			SourceUrl: el.Url,
			Color:     orDefault(el.AvgColor, "#333333"),
		}
	}

	log.Debug("Search complete", zap.Int("results", len(output)), zap.Int("total", data.TotalResults))
	return stock.SearchResult{
		Images:       output,
		TotalResults: data.TotalResults,
		TotalPages:   stock.TotalPages(data.TotalResults, perPage),
		CurrentPage:  page,
		Provider:     stock.Pexels,
		RateLimit:    rateLimit(respHeader, true),
	}, nil
}
