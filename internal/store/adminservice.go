package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/scriptsync/scriptsync/internal/logger"
	syncerrors "github.com/scriptsync/scriptsync/pkg/errors"
)

const itemsPath = "/wmi/SMS_ConfigurationItem"

// AdminServiceOptions configures the REST client. Everything is explicit;
// nothing is read from ambient process state.
type AdminServiceOptions struct {
	BaseURL            string
	Token              string
	Timeout            time.Duration
	RetryMax           int
	InsecureSkipVerify bool
	Logger             *logger.Logger
}

// AdminService talks to the management service's OData endpoint. Transient
// failures are retried with bounded backoff; an exhausted deadline surfaces
// as a timeout error.
type AdminService struct {
	base   string
	token  string
	client *retryablehttp.Client
	log    *logger.Logger
}

// NewAdminService builds a client from options.
func NewAdminService(opts AdminServiceOptions) (*AdminService, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("service base URL is required")
	}

	transport := cleanhttp.DefaultPooledTransport()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- operator opt-in for lab site servers
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	client.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}

	return &AdminService{
		base:   base,
		token:  opts.Token,
		client: client,
		log:    opts.Logger,
	}, nil
}

// Items fetches the configuration items selected by the filter.
func (s *AdminService) Items(ctx context.Context, filter Filter) ([]Item, error) {
	endpoint := fmt.Sprintf("%s%s?$filter=%s", s.base, itemsPath, url.QueryEscape(filter.predicate()))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	s.decorate(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr("fetch items", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch items: service returned %s", resp.Status)
	}

	var payload itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding item response: %w", err)
	}

	items := make([]Item, 0, len(payload.Value))
	for _, entry := range payload.Value {
		items = append(items, Item{
			ID:         entry.CIID,
			Name:       entry.DisplayName,
			Revision:   entry.Version,
			PackageXML: entry.PackageXML,
		})
	}

	s.log.WithFields(map[string]any{"count": len(items)}).Debug("fetched configuration items")
	return items, nil
}

// Persist writes an updated item back to the service.
func (s *AdminService) Persist(ctx context.Context, item Item) error {
	endpoint := fmt.Sprintf("%s%s(%d)", s.base, itemsPath, item.ID)

	body, err := json.Marshal(persistPayload{
		PackageXML: item.PackageXML,
		Version:    item.Revision,
	})
	if err != nil {
		return fmt.Errorf("encoding item %s: %w", item.Name, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPatch, endpoint, body)
	if err != nil {
		return fmt.Errorf("building persist request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.decorate(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransportErr("persist item", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("persist item: service returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	s.log.WithFields(map[string]any{"item": item.Name, "revision": item.Revision}).Debug("persisted configuration item")
	return nil
}

func (s *AdminService) decorate(req *retryablehttp.Request) {
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func classifyTransportErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return syncerrors.NewTimeoutError(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return syncerrors.NewTimeoutError(op, err)
	}
	return err
}

type itemPayload struct {
	CIID        int64  `json:"CI_ID"`
	DisplayName string `json:"LocalizedDisplayName"`
	Version     int    `json:"SDMPackageVersion"`
	PackageXML  string `json:"SDMPackageXML"`
}

type itemsResponse struct {
	Value []itemPayload `json:"value"`
}

type persistPayload struct {
	PackageXML string `json:"SDMPackageXML"`
	Version    int    `json:"SDMPackageVersion"`
}
