// client.go contains the logic for talking to mailchimp's survey reporting
// endpoints. it knows nothing about caching, only how to list and fetch responses.

package mailchimp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"surveysync/internal/components/assert"
	"surveysync/internal/components/telemetry"
	"surveysync/lib/restyutil"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_list  = "client.list"
	report_client_fetch = "client.fetch"
)

const (
	DefaultRequestsPerSecond = 10
	DefaultTimeout           = time.Minute
	// DefaultPageSize is the amount of ids requested per listing page,
	// mailchimp caps `count` at 1000.
	DefaultPageSize = 1000
)

// StatusError is returned when mailchimp answers with anything other than 200.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// BaseUrlForDc returns the api root of the given mailchimp data center (ex. "us3").
func BaseUrlForDc(dc string) string {
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc)
}

type ClientOptions struct {
	BaseUrl  string
	ApiKey   string
	SurveyId string
	// RequestsPerSecond <= 0 means DefaultRequestsPerSecond
	RequestsPerSecond float64
	// Timeout <= 0 means DefaultTimeout
	Timeout time.Duration
	// Dump receives every http exchange when non-nil.
	Dump *restyutil.Dumper
	// PageSize <= 0 means DefaultPageSize
	PageSize int
}

type Client struct {
	http     *resty.Client
	surveyId string
	pageSize int
	tel      telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) *Client {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.BaseUrl)
	assert.NotEmptyStr(opts.SurveyId)

	tel = telemetry.NewScopedAPI("mailchimp", tel)

	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.SetTimeout(opts.Timeout)
	// mailchimp accepts any username with the api key as the password
	httpClient.SetBasicAuth("anystring", opts.ApiKey)
	httpClient.SetHeader("accept", "application/json")
	httpClient.SetHeader("user-agent", "surveysync/1.0")

	// max burst == rate just means that no requests will be dropped
	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel, "surveysync/mailchimp")
	if opts.Dump != nil {
		opts.Dump.Attach(httpClient)
	}

	return &Client{
		http:     httpClient,
		surveyId: opts.SurveyId,
		pageSize: opts.PageSize,
		tel:      tel,
	}
}

type listResponse struct {
	Responses []struct {
		ResponseId string `json:"response_id"`
	} `json:"responses"`
	TotalItems int `json:"total_items"`
}

// ErrIncompleteListing is returned when the listing ends before every
// response mailchimp counted was returned.
var ErrIncompleteListing = errors.New("incomplete listing")

func (c *Client) listPage(ctx context.Context, offset int) (listResponse, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("survey_id", c.surveyId).
		SetQueryParams(map[string]string{
			"count":  strconv.Itoa(c.pageSize),
			"offset": strconv.Itoa(offset),
		}).
		Get("/reporting/surveys/{survey_id}/responses")
	if err != nil {
		c.tel.ReportBroken(report_client_list, fmt.Errorf("fetch: %w", err), offset)
		return listResponse{}, err
	}
	if res.StatusCode() != http.StatusOK {
		err := &StatusError{StatusCode: res.StatusCode(), Body: res.String()}
		c.tel.ReportBroken(report_client_list, err, offset)
		return listResponse{}, err
	}

	var parsed listResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		c.tel.ReportBroken(report_client_list, fmt.Errorf("unmarshal json: %w", err), offset)
		return listResponse{}, fmt.Errorf("decode survey responses: %w", err)
	}
	return parsed, nil
}

// List returns the ids of every response to the survey in the order
// mailchimp lists them, following pages until `total_items` ids were read.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var ids []string
	for {
		page, err := c.listPage(ctx, len(ids))
		if err != nil {
			return nil, err
		}
		for _, r := range page.Responses {
			ids = append(ids, r.ResponseId)
		}
		if len(ids) >= page.TotalItems {
			break
		}
		if len(page.Responses) == 0 {
			err := fmt.Errorf("%w: got %d of %d responses", ErrIncompleteListing, len(ids), page.TotalItems)
			c.tel.ReportBroken(report_client_list, err)
			return nil, err
		}
	}
	if ids == nil {
		ids = []string{}
	}
	c.tel.ReportDebug("listed survey responses", c.surveyId, len(ids))

	return ids, nil
}

// Fetch downloads a single survey response. A non-nil error is only
// returned if no http status was received at all, the status code is
// returned as-is otherwise and the body is only returned on 200.
func (c *Client) Fetch(ctx context.Context, id string) (int, []byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"survey_id":   c.surveyId,
			"response_id": id,
		}).
		Get("/reporting/surveys/{survey_id}/responses/{response_id}")
	if err != nil {
		c.tel.ReportBroken(report_client_fetch, fmt.Errorf("fetch: %w", err), id)
		return 0, nil, err
	}
	if res.StatusCode() != http.StatusOK {
		c.tel.ReportWarning(report_client_fetch, res.StatusCode(), id)
		return res.StatusCode(), nil, nil
	}

	return res.StatusCode(), res.Body(), nil
}
