package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/helper"
	"github.com/nextlevelbuilder/helperd/internal/notify"
)

const forecastEndpoint = "https://wttr.in"

// Weathery fetches the morning forecast for the user's city and pushes a
// one-line summary to their devices.
type Weathery struct{}

func (Weathery) Definition() catalogue.Definition {
	return catalogue.Definition{
		ID:          "weathery",
		Name:        "Weathery",
		Description: "Morning weather forecast as a push notification.",
		Priority:    2,
		Timeout:     1800,
		Schedule:    []string{"40 8 * * *"},
		Params: map[string]catalogue.ParamType{
			"city":  catalogue.ParamString,
			"units": catalogue.ParamString,
		},
	}
}

func (Weathery) Run(ctx context.Context, rc helper.RunContext) error {
	city := rc.StringParam("city", "")
	if city == "" {
		return fmt.Errorf("weathery: city parameter not set")
	}
	units := rc.StringParam("units", "metric")

	q := url.Values{"format": {"j1"}}
	if units == "imperial" {
		q.Set("u", "")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		forecastEndpoint+"/"+url.PathEscape(city)+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("weathery: build request: %w", err)
	}
	resp, err := rc.Deps.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("weathery: fetch forecast: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weathery: forecast service returned %d", resp.StatusCode)
	}

	var payload struct {
		Current []struct {
			TempC    string `json:"temp_C"`
			TempF    string `json:"temp_F"`
			Humidity string `json:"humidity"`
		} `json:"current_condition"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("weathery: decode forecast: %w", err)
	}
	if len(payload.Current) == 0 {
		return fmt.Errorf("weathery: empty forecast for %s", city)
	}

	cur := payload.Current[0]
	temp := cur.TempC + "°C"
	if units == "imperial" {
		temp = cur.TempF + "°F"
	}
	body := fmt.Sprintf("%s now: %s, humidity %s%%", city, temp, cur.Humidity)

	return rc.Deps.Pusher.Push(ctx, notify.Push{
		Title:  "Weathery",
		Body:   body,
		UserID: rc.User.ID,
		TTL:    3600,
	})
}
