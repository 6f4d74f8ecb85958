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

const unsplashBaseUrl = "https://api.unsplash.com"

type UnsplashPhoto struct {
	Id             string             `json:"id"`
	Width          float64            `json:"width"`
	Height         float64            `json:"height"`
	Color          string             `json:"color"`
	Description    string             `json:"description"`
	AltDescription string             `json:"alt_description"`
	User           UnsplashUser       `json:"user"`
	Urls           UnsplashUrls       `json:"urls"`
	Links          UnsplashPhotoLinks `json:"links"`
}

type UnsplashUser struct {
	Id       string            `json:"id"`
	Username string            `json:"username"`
	Name     string            `json:"name"`
	Links    UnsplashUserLinks `json:"links"`
}

type UnsplashPhotoLinks struct {
	Self     string `json:"self"`
	Html     string `json:"html"`
	Download string `json:"download"`
}

type UnsplashUserLinks struct {
	Self string `json:"self"`
	Html string `json:"html"`
}

type UnsplashUrls struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

type UnsplashSearchResult struct {
	Total      int             `json:"total"`
	TotalPages *int            `json:"total_pages"`
	Results    []UnsplashPhoto `json:"results"`
}

type UnsplashApi struct {
	adapter
}

func NewUnsplashApi(settings config.Source, log *zap.Logger, opts ...Option) *UnsplashApi {
	return &UnsplashApi{
		adapter: newAdapter(stock.Unsplash, unsplashBaseUrl, settings, log, unsplashStatus, opts),
	}
}

// Unsplash answers an exhausted quota with 403.
func unsplashStatus(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return stock.ErrUnauthorized
	case http.StatusForbidden, http.StatusTooManyRequests:
		return stock.ErrRateLimited
	}
	return nil
}

// PageSize bounds per_page to what the search endpoint accepts.
func (unsp *UnsplashApi) PageSize(perPage int) int {
	return stock.ClampPerPage(perPage, 1, 30)
}

func (unsp *UnsplashApi) Search(ctx context.Context, query string, page int, perPage int) (stock.SearchResult, error) {
	accessKey := unsp.apiKey()
	if accessKey == "" {
		return stock.SearchResult{}, unsp.notConfigured()
	}
	page = stock.NormalizePage(page)
	perPage = unsp.PageSize(perPage)
	log := unsp.log.With(zap.String("query", query), zap.Int("page", page))

	qParam := url.Values{}
	qParam.Add("query", query)
	qParam.Add("page", strconv.Itoa(page))
	qParam.Add("per_page", strconv.Itoa(perPage))
	qParam.Add("orientation", "landscape")
	header := http.Header{}
	header.Set("Accept-Version", "v1")
	header.Set("Authorization", "Client-ID "+accessKey)

	data := UnsplashSearchResult{}
	respHeader, err := unsp.get(ctx, log, unsp.baseUrl+"/search/photos?"+qParam.Encode(), header, &data)
	if err != nil {
		return stock.SearchResult{}, err
	}

	output := make([]stock.Image, len(data.Results))
	for i, el := range data.Results {
		output[i] = stock.Image{
			Id:              "unsplash-" + el.Id,
			Provider:        stock.Unsplash,
			Description:     firstOf(el.Description, el.AltDescription, query),
			Photographer:    orDefault(el.User.Name, "Unknown"),
			PhotographerUrl: el.User.Links.Html,
			ThumbnailUrl:    firstOf(el.Urls.Thumb, el.Urls.Small, el.Urls.Regular, el.Urls.Full, el.Urls.Raw),
			PreviewUrl:      firstOf(el.Urls.Regular, el.Urls.Small, el.Urls.Full, el.Urls.Raw, el.Urls.Thumb),
			DownloadUrls: stock.DownloadURLs{
				Small:    el.Urls.Small,
				Medium:   el.Urls.Regular,
				Large:    el.Urls.Full,
				Original: el.Urls.Raw,
			}.Filled(),
			Width:     nonNegative(el.Width),
			Height:    nonNegative(el.Height),
			SourceUrl: el.Links.Html,
			Color:     orDefault(el.Color, "#333333"),
		}
	}

	totalPages := stock.TotalPages(data.Total, perPage)
	if data.TotalPages != nil {
		totalPages = *data.TotalPages
	}
	log.Debug("Search complete", zap.Int("results", len(output)), zap.Int("total", data.Total))
	return stock.SearchResult{
		Images:       output,
		TotalResults: data.Total,
		TotalPages:   totalPages,
		CurrentPage:  page,
		Provider:     stock.Unsplash,
		// Unsplash publishes no reset time.
		RateLimit: rateLimit(respHeader, false),
	}, nil
}
