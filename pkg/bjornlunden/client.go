package bjornlunden

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// DefaultRows is the journal batch size used when none is given.
const DefaultRows = 1000

// ClientConfig represents the configuration for the API client.
type ClientConfig struct {
	BaseURL           string
	UserKey           string
	AccessToken       string
	Timeout           time.Duration // Default: 30 seconds
	RequestsPerSecond float64       // 0 disables pacing
	MaxRetries        int
	RetryBaseDelay    time.Duration // Default: 500ms
	MetadataCacheTTL  time.Duration // Default: 10 minutes
	HTTPClient        *http.Client  // Overrides Timeout when set
	Logger            *slog.Logger
}

// Client is a Björn Lundén accounting API client.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	userKey        string
	accessToken    string
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
	metadata       *cache.Cache
	logger         *slog.Logger
}

// NewClient creates a new API client.
func NewClient(config ClientConfig) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	retryBaseDelay := config.RetryBaseDelay
	if retryBaseDelay == 0 {
		retryBaseDelay = 500 * time.Millisecond
	}

	metadataTTL := config.MetadataCacheTTL
	if metadataTTL == 0 {
		metadataTTL = 10 * time.Minute
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimSuffix(config.BaseURL, "/"),
		userKey:        config.UserKey,
		accessToken:    config.AccessToken,
		limiter:        limiter,
		maxRetries:     config.MaxRetries,
		retryBaseDelay: retryBaseDelay,
		metadata:       cache.New(metadataTTL, 2*metadataTTL),
		logger:         logger,
	}
}

// SetAccessToken sets the access token for API requests.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

// ListCompanies lists the companies connected to the API client.
func (c *Client) ListCompanies(ctx context.Context) ([]Company, error) {
	var companies []Company
	if err := c.getJSON(ctx, "list companies", "", "/common/client", nil, false, &companies); err != nil {
		return nil, err
	}
	return companies, nil
}

// GetCompanyDetails fetches details about the company selected by the user key.
func (c *Client) GetCompanyDetails(ctx context.Context) (*CompanyDetails, error) {
	var details CompanyDetails
	if err := c.getJSON(ctx, "get company details", "", "/details", nil, true, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// ListDocuments lists all documents of the company.
func (c *Client) ListDocuments(ctx context.Context) ([]DocumentMetadata, error) {
	var documents []DocumentMetadata
	if err := c.getJSON(ctx, "list documents", "", "/document", nil, true, &documents); err != nil {
		return nil, err
	}
	return documents, nil
}

// GetDocumentMetadata fetches metadata about a document.
// Results are cached for the client's metadata TTL.
func (c *Client) GetDocumentMetadata(ctx context.Context, id ID) (*DocumentMetadata, error) {
	if cached, ok := c.metadata.Get(string(id)); ok {
		return cached.(*DocumentMetadata), nil
	}

	var meta DocumentMetadata
	path := fmt.Sprintf("/document/%s/meta", url.PathEscape(string(id)))
	if err := c.getJSON(ctx, "get document metadata", string(id), path, nil, true, &meta); err != nil {
		return nil, err
	}

	c.metadata.SetDefault(string(id), &meta)
	return &meta, nil
}

// ListAccounts fetches the chart of accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.getJSON(ctx, "list accounts", "", "/account", nil, true, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// FetchJournalEntries fetches journal entries between two dates (YYYY-MM-DD) in a single batch.
// rows caps the number of entries returned; 0 means DefaultRows.
func (c *Client) FetchJournalEntries(ctx context.Context, startDate, endDate string, rows int) ([]JournalEntry, error) {
	if rows <= 0 {
		rows = DefaultRows
	}

	query := url.Values{}
	query.Set("startdate", startDate)
	query.Set("enddate", endDate)
	query.Set("rows", strconv.Itoa(rows))

	var resp JournalEntriesResponse
	if err := c.getJSON(ctx, "fetch journal entries", "", "/journal/entry/batch", query, true, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FetchDocumentPDF fetches a document rendered as PDF.
func (c *Client) FetchDocumentPDF(ctx context.Context, id ID) ([]byte, error) {
	path := fmt.Sprintf("/document/asPdf/%s", url.PathEscape(string(id)))
	return c.get(ctx, "fetch document pdf", string(id), path, nil, true)
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, op, id, path string, query url.Values, tenant bool, out any) error {
	body, err := c.get(ctx, op, id, path, query, tenant)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bjornlunden: %s: failed to decode response: %w", op, err)
	}
	return nil
}

// get performs a GET with retry on transient failures and returns the response body.
func (c *Client) get(ctx context.Context, op, id, path string, query url.Values, tenant bool) ([]byte, error) {
	if tenant && c.userKey == "" {
		return nil, fmt.Errorf("bjornlunden: %s: %w", op, ErrMissingUserKey)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request", "op", op, "id", id, "attempt", attempt, "error", lastErr)
		}

		body, resp, err := c.do(ctx, endpoint, tenant)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, errRateLimit) {
				return nil, fmt.Errorf("bjornlunden: %s: %w", op, err)
			}
			lastErr = fmt.Errorf("bjornlunden: %s: failed to make request: %w", op, err)
			if attempt < c.maxRetries && !errors.Is(err, errBuildRequest) {
				if err := c.sleep(ctx, retryDelay(c.retryBaseDelay, attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = newAPIError(op, id, resp.StatusCode, body)
		if !retryable(resp.StatusCode) || attempt == c.maxRetries {
			return nil, lastErr
		}

		delay, ok := retryAfter(resp)
		if !ok {
			delay = retryDelay(c.retryBaseDelay, attempt)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

var (
	errBuildRequest = errors.New("failed to create request")
	errRateLimit    = errors.New("rate limit wait")
)

// do sends one request and reads the whole body.
func (c *Client) do(ctx context.Context, endpoint string, tenant bool) ([]byte, *http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", errRateLimit, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errBuildRequest, err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-Type", "application/json")
	if tenant {
		req.Header.Set("User-Key", c.userKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
