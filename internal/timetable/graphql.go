package timetable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "eacal/internal/log"
)

const (
	defaultTimeout = 15 * time.Second

	// maxResponseBytes caps a single response body.
	maxResponseBytes = 4 << 20
)

const classWeekQuery = `query ClassWeek($name: String!, $week: Int!) {
  classWeek(name: $name, week: $week) {
    days {
      date
      lessons {
        name
        room
        teacher
      }
    }
    scheduleDefinitions {
      from
      to
    }
  }
}`

const currentWeekQuery = `query CurrentWeek {
  currentWeek
}`

var ErrNoData = errors.New("timetable response has no data")

// GraphQLClient talks to the timetable service's GraphQL endpoint.
type GraphQLClient struct {
	client   *http.Client
	endpoint string
}

// Option configures a GraphQLClient.
type Option func(*GraphQLClient)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GraphQLClient) {
		g.client = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(g *GraphQLClient) {
		if d > 0 {
			g.client = &http.Client{Timeout: d}
		}
	}
}

// NewGraphQLClient creates a client for the given endpoint URL.
func NewGraphQLClient(endpoint string, opts ...Option) *GraphQLClient {
	g := &GraphQLClient{
		client:   &http.Client{Timeout: defaultTimeout},
		endpoint: endpoint,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type classWeekData struct {
	ClassWeek *Week `json:"classWeek"`
}

type currentWeekData struct {
	CurrentWeek *int `json:"currentWeek"`
}

// CurrentWeek implements Client.
func (g *GraphQLClient) CurrentWeek(ctx context.Context) (int, error) {
	var data currentWeekData
	if err := g.do(ctx, "CurrentWeek", currentWeekQuery, map[string]any{}, &data); err != nil {
		return 0, fmt.Errorf("current week: %w", err)
	}
	if data.CurrentWeek == nil {
		return 0, fmt.Errorf("current week: %w", ErrNoData)
	}
	return *data.CurrentWeek, nil
}

// FetchWeek implements Client.
func (g *GraphQLClient) FetchWeek(ctx context.Context, class string, week int) (Week, error) {
	vars := map[string]any{"name": class, "week": week}

	var data classWeekData
	if err := g.do(ctx, "ClassWeek", classWeekQuery, vars, &data); err != nil {
		return Week{}, fmt.Errorf("class week %s/%d: %w", class, week, err)
	}
	if data.ClassWeek == nil {
		return Week{}, fmt.Errorf("class week %s/%d: %w", class, week, ErrNoData)
	}

	appLog.Info("timetable fetch success", "class", class, "week", week,
		"days", len(data.ClassWeek.Days), "slots", len(data.ClassWeek.Definitions))
	return *data.ClassWeek, nil
}

func (g *GraphQLClient) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	if g.endpoint == "" {
		return errors.New("timetable endpoint is empty")
	}

	body, err := json.Marshal(graphQLRequest{Query: query, OperationName: op, Variables: vars})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	appLog.Debug("timetable request", "op", op, "endpoint", g.endpoint)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s: %s", resp.Status, snippet(payload))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return ErrNoData
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

var _ Client = (*GraphQLClient)(nil)
