package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/probelabs/memprobe/internal/probe/llm"
)

// argString returns args[key] as a string, or def when absent or mistyped.
func argString(args map[string]interface{}, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// argInt returns args[key] as an int. JSON numbers decode as float64.
func argInt(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argFloat(args map[string]interface{}, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

func marshalResult(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("tools: marshal result: %w", err)
	}
	return string(data), nil
}

// WeatherLookup returns mock current conditions and a short forecast.
type WeatherLookup struct{}

func (*WeatherLookup) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "weather_lookup",
			Description: "Get current weather and forecast for any city worldwide",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"city":    map[string]interface{}{"type": "string", "description": "City name"},
					"country": map[string]interface{}{"type": "string", "description": "Country name (optional)"},
					"days":    map[string]interface{}{"type": "integer", "description": "Forecast days, max 7"},
				},
				"required": []string{"city"},
			},
		},
	}
}

func (*WeatherLookup) Execute(_ context.Context, args map[string]interface{}) (string, error) {
	city := argString(args, "city", "")
	if city == "" {
		return "", fmt.Errorf("tools: weather_lookup: city is required")
	}
	location := city
	if country := argString(args, "country", ""); country != "" {
		location = city + ", " + country
	}
	days := argInt(args, "days", 3)
	if days > 7 {
		days = 7
	}

	conditions := []string{"Sunny", "Cloudy", "Rainy", "Partly cloudy"}
	forecast := make([]map[string]string, 0, days)
	for i := 0; i < days; i++ {
		forecast = append(forecast, map[string]string{
			"date":      time.Now().AddDate(0, 0, i).Format("2006-01-02"),
			"high":      fmt.Sprintf("%d°C", 20+i%5),
			"low":       fmt.Sprintf("%d°C", 15+i%3),
			"condition": conditions[i%len(conditions)],
		})
	}

	return marshalResult(map[string]interface{}{
		"location": location,
		"current": map[string]string{
			"temperature": "22°C",
			"condition":   "Partly cloudy",
			"humidity":    "65%",
			"wind":        "15 km/h",
		},
		"forecast": forecast,
	})
}

// FlightSearch returns a fixed set of mock flights for the route.
type FlightSearch struct{}

func (*FlightSearch) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "flight_search",
			Description: "Search for flights between cities with dates and preferences",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"origin":         map[string]interface{}{"type": "string"},
					"destination":    map[string]interface{}{"type": "string"},
					"departure_date": map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
					"return_date":    map[string]interface{}{"type": "string"},
					"passengers":     map[string]interface{}{"type": "integer"},
					"flight_class":   map[string]interface{}{"type": "string", "description": "economy, business or first"},
				},
				"required": []string{"origin", "destination", "departure_date"},
			},
		},
	}
}

func (*FlightSearch) Execute(_ context.Context, args map[string]interface{}) (string, error) {
	origin := argString(args, "origin", "")
	destination := argString(args, "destination", "")
	if origin == "" || destination == "" {
		return "", fmt.Errorf("tools: flight_search: origin and destination are required")
	}
	departureDate := argString(args, "departure_date", "")
	passengers := argInt(args, "passengers", 1)
	class := argString(args, "flight_class", "economy")

	airlines := []string{"American Airlines", "Delta", "United"}
	flights := make([]map[string]interface{}, 0, len(airlines))
	for i, airline := range airlines {
		flights = append(flights, map[string]interface{}{
			"flight_number": fmt.Sprintf("AA%d", 100+i),
			"airline":       airline,
			"departure": map[string]string{
				"airport": origin,
				"time":    fmt.Sprintf("%d:00 AM", 8+i*2),
				"date":    departureDate,
			},
			"arrival": map[string]string{
				"airport": destination,
				"time":    fmt.Sprintf("%d:00 PM", 12+i*2),
				"date":    departureDate,
			},
			"price":      fmt.Sprintf("$%d", 400+i*150),
			"class":      class,
			"passengers": passengers,
		})
	}

	return marshalResult(map[string]interface{}{
		"search_criteria": map[string]interface{}{
			"origin":         origin,
			"destination":    destination,
			"departure_date": departureDate,
			"return_date":    argString(args, "return_date", ""),
			"passengers":     passengers,
			"class":          class,
		},
		"flights":       flights,
		"total_results": len(flights),
	})
}

// HotelSearch returns mock hotels filtered by budget and star rating.
type HotelSearch struct{}

func (*HotelSearch) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "hotel_search",
			Description: "Search for hotels in a city with dates, budget, and preferences",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"city":        map[string]interface{}{"type": "string"},
					"check_in":    map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
					"check_out":   map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
					"guests":      map[string]interface{}{"type": "integer"},
					"budget_max":  map[string]interface{}{"type": "integer", "description": "Max price per night in USD"},
					"star_rating": map[string]interface{}{"type": "integer", "description": "Minimum star rating"},
				},
				"required": []string{"city", "check_in", "check_out"},
			},
		},
	}
}

func (*HotelSearch) Execute(_ context.Context, args map[string]interface{}) (string, error) {
	city := argString(args, "city", "")
	if city == "" {
		return "", fmt.Errorf("tools: hotel_search: city is required")
	}
	budgetMax := argInt(args, "budget_max", 200)
	starRating := argInt(args, "star_rating", 3)

	names := []string{
		"Grand Palace Hotel", "City Center Inn", "Luxury Resort & Spa",
		"Budget Traveler Lodge", "Historic Downtown Hotel",
	}
	amenities := []string{"WiFi", "Pool", "Gym", "Restaurant", "Spa"}

	var hotels []map[string]interface{}
	for i, name := range names {
		price := 100 + i*50
		stars := 3 + i%3
		if price > budgetMax || stars < starRating {
			continue
		}
		hotels = append(hotels, map[string]interface{}{
			"name":               name,
			"star_rating":        stars,
			"price_per_night":    fmt.Sprintf("$%d", price),
			"total_price":        fmt.Sprintf("$%d", price*3),
			"address":            fmt.Sprintf("%d00 Main Street, %s", i+1, city),
			"amenities":          amenities[:i+2],
			"availability":       "Available",
			"distance_to_center": fmt.Sprintf("%d.%dkm", i+1, i),
		})
	}
	total := len(hotels)
	if len(hotels) > 3 {
		hotels = hotels[:3]
	}

	return marshalResult(map[string]interface{}{
		"search_criteria": map[string]interface{}{
			"city":        city,
			"check_in":    argString(args, "check_in", ""),
			"check_out":   argString(args, "check_out", ""),
			"guests":      argInt(args, "guests", 2),
			"budget_max":  budgetMax,
			"star_rating": starRating,
		},
		"hotels":          hotels,
		"total_available": total,
	})
}

// CurrencyConverter converts between a fixed table of exchange rates.
type CurrencyConverter struct{}

// mockRates are USD-relative rates, frozen so probe runs are reproducible.
var mockRates = map[string]float64{
	"USD": 1.0,
	"EUR": 0.85,
	"GBP": 0.73,
	"JPY": 110.0,
	"CAD": 1.25,
	"AUD": 1.35,
}

func (*CurrencyConverter) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "currency_converter",
			Description: "Convert currencies using current exchange rates",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"amount":        map[string]interface{}{"type": "number"},
					"from_currency": map[string]interface{}{"type": "string", "description": "ISO code, e.g. USD"},
					"to_currency":   map[string]interface{}{"type": "string", "description": "ISO code, e.g. EUR"},
				},
				"required": []string{"amount", "from_currency", "to_currency"},
			},
		},
	}
}

func (*CurrencyConverter) Execute(_ context.Context, args map[string]interface{}) (string, error) {
	amount := argFloat(args, "amount", 0)
	from := strings.ToUpper(argString(args, "from_currency", ""))
	to := strings.ToUpper(argString(args, "to_currency", ""))
	if from == "" || to == "" {
		return "", fmt.Errorf("tools: currency_converter: from_currency and to_currency are required")
	}

	fromRate, ok := mockRates[from]
	if !ok {
		fromRate = 1.0
	}
	toRate, ok := mockRates[to]
	if !ok {
		toRate = 1.0
	}

	converted := amount / fromRate * toRate

	return marshalResult(map[string]interface{}{
		"original_amount":  amount,
		"from_currency":    from,
		"to_currency":      to,
		"converted_amount": round2(converted),
		"exchange_rate":    round4(toRate / fromRate),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
