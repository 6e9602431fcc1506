package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsPage = `{
  "count": 3,
  "pageSize": 2,
  "pageStartIndex": %d,
  "items": [%s]
}`

const jobA = `{"id":"a1","jobNumber":"J-100","jobName":"Smith Reroof","contact":{"name":"Pat Smith"},"currentMilestone":"Approved","contractAmount":18250.5,"salesPerson":{"email":"Rep@TSM.com"},"modifiedDate":"2026-03-01T10:00:00Z"}`
const jobB = `{"id":"b2","jobNumber":"J-101","jobName":"Lee Repair","customerName":"Lee","status":"Lead","contractAmount":"900"}`
const jobC = `{"id":"c3","jobNumber":"J-102","jobName":"Park Gutters"}`
const jobNoID = `{"jobNumber":"J-999"}`

func TestListJobsParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("pageSize"))
		assert.Equal(t, "2026-02-01T00:00:00Z", r.URL.Query().Get("modifiedSince"))
		fmt.Fprintf(w, jobsPage, 0, jobA+","+jobB+","+jobNoID)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "secret", PageSize: 2, RequestsPerSecond: 100})
	require.NoError(t, err)

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	page, err := c.ListJobs(context.Background(), 0, &since)
	require.NoError(t, err)
	require.Len(t, page.Jobs, 2)
	assert.Equal(t, 3, page.Total)

	a := page.Jobs[0]
	assert.Equal(t, "a1", a.ExternalID)
	assert.Equal(t, "Pat Smith", a.CustomerName)
	assert.Equal(t, "Approved", a.Status)
	assert.Equal(t, "18250.5", a.ContractAmount.String())
	assert.Equal(t, "rep@tsm.com", a.SalesRepEmail)
	require.NotNil(t, a.ModifiedAt)
	assert.Equal(t, 2026, a.ModifiedAt.Year())
	assert.Contains(t, a.Raw, `"J-100"`)

	b := page.Jobs[1]
	assert.Equal(t, "Lee", b.CustomerName)
	assert.Equal(t, "Lead", b.Status)
	assert.Equal(t, "900", b.ContractAmount.String())
	assert.Nil(t, b.ModifiedAt)
}

func TestAllJobsWalksPages(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Query().Get("pageStartIndex") {
		case "0":
			fmt.Fprintf(w, jobsPage, 0, jobA+","+jobB)
		case "2":
			fmt.Fprintf(w, jobsPage, 2, jobC)
		default:
			t.Errorf("unexpected page %s", r.URL.RawQuery)
		}
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "secret", PageSize: 2, RequestsPerSecond: 100})
	require.NoError(t, err)

	jobs, err := c.AllJobs(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListJobsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "bad"})
	require.NoError(t, err)

	_, err = c.ListJobs(context.Background(), 0, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid api key", apiErr.Message)
}

func TestListJobsInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	_, err = c.ListJobs(context.Background(), 0, nil)
	assert.Error(t, err)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "https://crm.example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCancelledContextStopsBeforeRequest(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ListJobs(ctx, 0, nil)
	assert.Error(t, err)
}
