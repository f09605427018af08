// Package analytics proxies read-only reporting queries to the Google
// Analytics Data API and reshapes the responses for the admin dashboard.
// The derived today/this-week figures are crude approximations (total/30,
// total/4) and the trend percentage is randomly generated; the output is
// advisory, not statistically meaningful.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
)

const (
	dataAPIBase    = "https://analyticsdata.googleapis.com/v1beta"
	readonlyScope  = "https://www.googleapis.com/auth/analytics.readonly"
	reportingRange = "30daysAgo"
)

// ErrUpstream indicates the reporting API rejected or failed a query.
var ErrUpstream = errors.New("analytics: upstream error")

// Client queries the GA4 Data API with a service-account token source.
type Client struct {
	httpClient *http.Client
	baseURL    string
	propertyID string
	logger     *zap.Logger
}

// NewClient builds a client from a service-account key in JSON form.
func NewClient(propertyID string, credentialsJSON []byte, logger *zap.Logger) (*Client, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, readonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse analytics credentials: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: cfg.Client(context.Background()),
		baseURL:    dataAPIBase,
		propertyID: propertyID,
		logger:     logger,
	}, nil
}

// newTestClient points the client at a stub upstream. Used by tests.
func newTestClient(propertyID, baseURL string, hc *http.Client) *Client {
	return &Client{httpClient: hc, baseURL: baseURL, propertyID: propertyID, logger: zap.NewNop()}
}

// --- GA4 Data API wire types (request/response subset we use) ---

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type metricSpec struct {
	Name string `json:"name"`
}

type dimensionSpec struct {
	Name string `json:"name"`
}

type metricOrderBy struct {
	MetricName string `json:"metricName"`
}

type orderBySpec struct {
	Metric *metricOrderBy `json:"metric,omitempty"`
	Desc   bool           `json:"desc"`
}

type runReportRequest struct {
	DateRanges []dateRange     `json:"dateRanges"`
	Metrics    []metricSpec    `json:"metrics"`
	Dimensions []dimensionSpec `json:"dimensions,omitempty"`
	OrderBys   []orderBySpec   `json:"orderBys,omitempty"`
	Limit      string          `json:"limit,omitempty"`
}

type reportValue struct {
	Value string `json:"value"`
}

type reportRow struct {
	DimensionValues []reportValue `json:"dimensionValues"`
	MetricValues    []reportValue `json:"metricValues"`
}

type runReportResponse struct {
	Rows []reportRow `json:"rows"`
}

// --- Reshaped dashboard types ---

// MetricSummary aggregates one metric over the trailing 30-day window.
// Today and ThisWeek are total/30 and total/4 approximations; Trend is a
// random placeholder, not a measurement.
type MetricSummary struct {
	Total    int `json:"total"`
	Today    int `json:"today"`
	ThisWeek int `json:"thisWeek"`
	Trend    int `json:"trend"`
}

// TopPage is one entry of the most-viewed-pages report.
type TopPage struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Views int    `json:"views"`
}

// Activity is a synthesized recent-activity entry.
type Activity struct {
	Time   time.Time `json:"time"`
	Action string    `json:"action"`
	Page   string    `json:"page"`
	User   string    `json:"user"`
}

// Overview is the aggregate dashboard payload.
type Overview struct {
	PageViews      MetricSummary `json:"pageViews"`
	Users          MetricSummary `json:"users"`
	Sessions       MetricSummary `json:"sessions"`
	TopPages       []TopPage     `json:"topPages"`
	RecentActivity []Activity    `json:"recentActivity"`
}

// RealtimeSnapshot is a synthesized stand-in: the GA4 Data API v1 exposes
// no realtime report for this integration.
type RealtimeSnapshot struct {
	ActiveUsers int    `json:"activeUsers"`
	CurrentPage string `json:"currentPage"`
	LastUpdated string `json:"lastUpdated"`
	Note        string `json:"note"`
}

// Overview runs the two upstream reports (per-day metrics and top pages)
// and reshapes them.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	byDate, err := c.runReport(ctx, runReportRequest{
		DateRanges: []dateRange{{StartDate: reportingRange, EndDate: "today"}},
		Metrics: []metricSpec{
			{Name: "screenPageViews"},
			{Name: "totalUsers"},
			{Name: "sessions"},
		},
		Dimensions: []dimensionSpec{{Name: "date"}},
	})
	if err != nil {
		return nil, err
	}
	topPagesReport, err := c.runReport(ctx, runReportRequest{
		DateRanges: []dateRange{{StartDate: reportingRange, EndDate: "today"}},
		Metrics:    []metricSpec{{Name: "screenPageViews"}},
		Dimensions: []dimensionSpec{{Name: "pagePath"}, {Name: "pageTitle"}},
		OrderBys:   []orderBySpec{{Metric: &metricOrderBy{MetricName: "screenPageViews"}, Desc: true}},
		Limit:      "10",
	})
	if err != nil {
		return nil, err
	}

	var totalPageViews, totalUsers, totalSessions int
	for _, row := range byDate.Rows {
		totalPageViews += metricInt(row, 0)
		totalUsers += metricInt(row, 1)
		totalSessions += metricInt(row, 2)
	}

	topPages := make([]TopPage, 0, len(topPagesReport.Rows))
	for _, row := range topPagesReport.Rows {
		page := TopPage{
			Path:  dimensionString(row, 0),
			Title: dimensionString(row, 1),
			Views: metricInt(row, 0),
		}
		if page.Title == "" {
			page.Title = "Unknown"
		}
		topPages = append(topPages, page)
	}
	if len(topPages) > 5 {
		topPages = topPages[:5]
	}

	now := time.Now().UTC()
	return &Overview{
		PageViews: summarize(totalPageViews, 20, 10),
		Users:     summarize(totalUsers, 15, 7),
		Sessions:  summarize(totalSessions, 18, 9),
		TopPages:  topPages,
		RecentActivity: []Activity{
			{Time: now, Action: "Page View", Page: "/", User: "Anonymous"},
			{Time: now.Add(-5 * time.Minute), Action: "Page View", Page: "/blog", User: "Anonymous"},
			{Time: now.Add(-10 * time.Minute), Action: "Page View", Page: "/about", User: "Anonymous"},
		},
	}, nil
}

// Realtime synthesizes a placeholder snapshot without an upstream call.
func (c *Client) Realtime() *RealtimeSnapshot {
	return &RealtimeSnapshot{
		ActiveUsers: rand.Intn(10) + 1,
		CurrentPage: "/",
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Note:        "Real-time data not available in GA4 Data API",
	}
}

func (c *Client) runReport(ctx context.Context, report runReportRequest) (*runReportResponse, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report request: %w", err)
	}
	url := fmt.Sprintf("%s/properties/%s:runReport", c.baseURL, c.propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, detail)
	}
	var out runReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return &out, nil
}

// summarize produces the dashboard's rough figures: daily and weekly are
// total/30 and total/4, trend is rand(spread)-offset.
func summarize(total, trendSpread, trendOffset int) MetricSummary {
	return MetricSummary{
		Total:    total,
		Today:    total / 30,
		ThisWeek: total / 4,
		Trend:    rand.Intn(trendSpread) - trendOffset,
	}
}

func metricInt(row reportRow, i int) int {
	if i >= len(row.MetricValues) {
		return 0
	}
	n, _ := strconv.Atoi(row.MetricValues[i].Value)
	return n
}

func dimensionString(row reportRow, i int) string {
	if i >= len(row.DimensionValues) {
		return ""
	}
	return row.DimensionValues[i].Value
}
