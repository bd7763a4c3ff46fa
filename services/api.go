package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"vivarium/config"
	"vivarium/models"

	"go.uber.org/zap"
)

// APIService talks to the appliance's HTTP endpoints: history fetches, switch
// commands, the startup door-history seed and form submission. It implements
// the cache's SeriesFetcher.
type APIService struct {
	logger     *zap.Logger
	baseURL    string
	httpClient *http.Client
}

func NewAPIService(cfg *config.Config, logger *zap.Logger) *APIService {
	return &APIService{
		logger:  logger,
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchSeries retrieves the historical series for one subject and period. The
// appliance returns an array of objects whose values are arrays of
// (timestamp, value, ...) tuples; all tuples are flattened into one series
// ordered by timestamp.
func (a *APIService) FetchSeries(ctx context.Context, subjectID string, period models.Period) ([]models.SeriesPoint, error) {
	endpoint := fmt.Sprintf("%s/api/history/%s/%s", a.baseURL, subjectID, period)

	var groups []map[string][][]float64
	if err := a.getJSON(ctx, endpoint, &groups); err != nil {
		return nil, fmt.Errorf("fetch history for %s/%s: %w", subjectID, period, err)
	}

	var points []models.SeriesPoint
	for _, group := range groups {
		for _, tuples := range group {
			for _, tuple := range tuples {
				if len(tuple) < 2 {
					continue
				}
				points = append(points, models.SeriesPoint{
					Timestamp: int64(tuple[0]),
					Value:     tuple[1],
				})
			}
		}
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})
	return points, nil
}

// ToggleSwitch flips one power switch. Fire-and-forget: the response body is
// unused, only a non-2xx status is an error.
func (a *APIService) ToggleSwitch(ctx context.Context, id string) error {
	return a.fireAndForget(ctx, fmt.Sprintf("%s/api/switch/toggle/%s", a.baseURL, id))
}

// SetSwitchState drives one switch to an explicit value (0-100 for dimmers,
// 0/1 for plain relays). Fire-and-forget like ToggleSwitch.
func (a *APIService) SetSwitchState(ctx context.Context, id string, value int) error {
	return a.fireAndForget(ctx, fmt.Sprintf("%s/api/switch/state/%s/%d", a.baseURL, id, value))
}

// FetchDoorHistory grabs the per-door state samples. Called once at startup
// to seed notifications about door activity that happened while the dashboard
// was away.
func (a *APIService) FetchDoorHistory(ctx context.Context) (map[string][]models.DoorSample, error) {
	endpoint := a.baseURL + "/api/history/doors"

	var raw map[string][][]interface{}
	if err := a.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("fetch door history: %w", err)
	}

	doors := make(map[string][]models.DoorSample, len(raw))
	for door, samples := range raw {
		for _, sample := range samples {
			if len(sample) < 2 {
				continue
			}
			ts, ok := sample[0].(float64)
			if !ok {
				continue
			}
			state, _ := sample[1].(string)
			doors[door] = append(doors[door], models.DoorSample{
				Timestamp: int64(ts),
				State:     models.DoorStateFrom(state),
			})
		}
	}
	return doors, nil
}

// SubmitForm posts a reconstructed form record to the config endpoint of its
// kind.
func (a *APIService) SubmitForm(ctx context.Context, kind models.FormKind, record *models.FormRecord) error {
	body, err := json.Marshal(record.Body())
	if err != nil {
		return fmt.Errorf("encode %s form: %w", kind, err)
	}

	endpoint := fmt.Sprintf("%s/api/config/%s", a.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit %s form: %w", kind, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("appliance API error: %s", resp.Status)
	}

	a.logger.Info("Form submitted",
		zap.String("kind", string(kind)),
		zap.Int("bytes", len(body)))
	return nil
}

func (a *APIService) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("appliance API error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (a *APIService) fireAndForget(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("appliance API error: %s", resp.Status)
	}
	return nil
}
