// Package crm is a small REST client for the roofing CRM's jobs endpoint.
package crm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 8 << 20

var ErrNotConfigured = errors.New("crm: base URL and API key are required")

// APIError is a non-2xx reply from the CRM.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("crm: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("crm: request failed with status %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL           string
	APIKey            string
	PageSize          int
	RequestsPerSecond int
	HTTPClient        *http.Client
}

// Job is the subset of a CRM job the portal keeps.
type Job struct {
	ExternalID     string
	JobNumber      string
	JobName        string
	CustomerName   string
	Status         string
	ContractAmount decimal.Decimal
	SalesRepEmail  string
	ModifiedAt     *time.Time
	Raw            string
}

type Page struct {
	Jobs  []Job
	Start int
	Total int
}

type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("crm: invalid base URL: %w", err)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// ListJobs fetches one page of jobs starting at start. A non-nil since
// restricts the page to jobs modified after it.
func (c *Client) ListJobs(ctx context.Context, start int, since *time.Time) (*Page, error) {
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(c.pageSize))
	query.Set("pageStartIndex", strconv.Itoa(start))
	if since != nil {
		query.Set("modifiedSince", since.UTC().Format(time.RFC3339))
	}

	body, err := c.get(ctx, "/jobs", query)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("crm: response is not valid JSON")
	}

	doc := gjson.ParseBytes(body)
	page := &Page{Start: start, Total: int(doc.Get("count").Int())}
	doc.Get("items").ForEach(func(_, item gjson.Result) bool {
		if job, ok := parseJob(item); ok {
			page.Jobs = append(page.Jobs, job)
		}
		return true
	})
	return page, nil
}

// AllJobs walks every page. The limiter spaces the requests.
func (c *Client) AllJobs(ctx context.Context, since *time.Time) ([]Job, error) {
	var jobs []Job
	start := 0
	for {
		page, err := c.ListJobs(ctx, start, since)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, page.Jobs...)
		start += c.pageSize
		if len(page.Jobs) == 0 || start >= page.Total {
			return jobs, nil
		}
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("crm: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}

func parseJob(item gjson.Result) (Job, bool) {
	id := item.Get("id").String()
	if id == "" {
		return Job{}, false
	}
	job := Job{
		ExternalID:    id,
		JobNumber:     item.Get("jobNumber").String(),
		JobName:       item.Get("jobName").String(),
		CustomerName:  firstString(item, "contact.name", "customerName"),
		Status:        firstString(item, "currentMilestone", "status"),
		SalesRepEmail: strings.ToLower(firstString(item, "salesPerson.email", "salesRepEmail")),
		Raw:           item.Raw,
	}
	if amount := item.Get("contractAmount"); amount.Exists() {
		if d, err := decimal.NewFromString(amount.String()); err == nil {
			job.ContractAmount = d.Round(2)
		}
	}
	if modified := item.Get("modifiedDate"); modified.Exists() {
		if ts, err := time.Parse(time.RFC3339, modified.String()); err == nil {
			ts = ts.UTC()
			job.ModifiedAt = &ts
		}
	}
	return job, true
}

func firstString(item gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := item.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}
