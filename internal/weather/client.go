// Package weather reads job-site forecasts from the Open-Meteo API.
package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	forecastDays = 7

	// A day is workable for roofing crews below these limits.
	maxWorkablePrecipChance = 40
	maxWorkableWindMPH      = 25
)

type Current struct {
	Time            string  `json:"time"`
	TemperatureF    float64 `json:"temperature_f"`
	WindSpeedMPH    float64 `json:"wind_speed_mph"`
	PrecipitationIn float64 `json:"precipitation_in"`
	WeatherCode     int     `json:"weather_code"`
}

type Day struct {
	Date         string  `json:"date"`
	TempMaxF     float64 `json:"temp_max_f"`
	TempMinF     float64 `json:"temp_min_f"`
	PrecipChance int     `json:"precip_chance"`
	WindMaxMPH   float64 `json:"wind_max_mph"`
	WeatherCode  int     `json:"weather_code"`
	Workable     bool    `json:"workable"`
}

type Forecast struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timezone  string    `json:"timezone"`
	Current   Current   `json:"current"`
	Daily     []Day     `json:"daily"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ValidCoordinates reports whether lat/lon are on the globe.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	if !ValidCoordinates(lat, lon) {
		return nil, fmt.Errorf("weather: coordinates out of range: %f,%f", lat, lon)
	}
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	query.Set("current", "temperature_2m,wind_speed_10m,precipitation,weather_code")
	query.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_probability_max,wind_speed_10m_max,weather_code")
	query.Set("temperature_unit", "fahrenheit")
	query.Set("wind_speed_unit", "mph")
	query.Set("precipitation_unit", "inch")
	query.Set("timezone", "auto")
	query.Set("forecast_days", strconv.Itoa(forecastDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/forecast?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("weather: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		reason := gjson.GetBytes(body, "reason").String()
		return nil, fmt.Errorf("weather: status %d: %s", resp.StatusCode, reason)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("weather: response is not valid JSON")
	}
	return parseForecast(gjson.ParseBytes(body)), nil
}

func parseForecast(doc gjson.Result) *Forecast {
	f := &Forecast{
		Latitude:  doc.Get("latitude").Float(),
		Longitude: doc.Get("longitude").Float(),
		Timezone:  doc.Get("timezone").String(),
		Current: Current{
			Time:            doc.Get("current.time").String(),
			TemperatureF:    doc.Get("current.temperature_2m").Float(),
			WindSpeedMPH:    doc.Get("current.wind_speed_10m").Float(),
			PrecipitationIn: doc.Get("current.precipitation").Float(),
			WeatherCode:     int(doc.Get("current.weather_code").Int()),
		},
		FetchedAt: time.Now().UTC(),
	}

	daily := doc.Get("daily")
	dates := daily.Get("time").Array()
	maxT := daily.Get("temperature_2m_max").Array()
	minT := daily.Get("temperature_2m_min").Array()
	precip := daily.Get("precipitation_probability_max").Array()
	wind := daily.Get("wind_speed_10m_max").Array()
	codes := daily.Get("weather_code").Array()

	at := func(a []gjson.Result, i int) gjson.Result {
		if i < len(a) {
			return a[i]
		}
		return gjson.Result{}
	}
	for i, d := range dates {
		day := Day{
			Date:         d.String(),
			TempMaxF:     at(maxT, i).Float(),
			TempMinF:     at(minT, i).Float(),
			PrecipChance: int(at(precip, i).Int()),
			WindMaxMPH:   at(wind, i).Float(),
			WeatherCode:  int(at(codes, i).Int()),
		}
		day.Workable = day.PrecipChance < maxWorkablePrecipChance && day.WindMaxMPH < maxWorkableWindMPH
		f.Daily = append(f.Daily, day)
	}
	return f
}
