package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/BaSui01/weatherbot/clients/maps"
)

// MockGeocoder 返回预设的地理编码结果
type MockGeocoder struct {
	mu      sync.Mutex
	Results []maps.SearchResult
	Err     error
	Queries []string
}

// SearchAddress 记录查询并返回预设结果
func (g *MockGeocoder) SearchAddress(ctx context.Context, query string) ([]maps.SearchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Queries = append(g.Queries, query)
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Results, nil
}

// WeatherCall 记录一次天气查询
type WeatherCall struct {
	At   maps.Coordinates
	Type maps.WeatherType
}

// MockWeatherSource 按天气类型返回预设 JSON
type MockWeatherSource struct {
	mu    sync.Mutex
	Data  map[maps.WeatherType]json.RawMessage
	Err   error
	Calls []WeatherCall
}

// Get 记录调用并返回预设数据
func (w *MockWeatherSource) Get(ctx context.Context, at maps.Coordinates, wt maps.WeatherType) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Calls = append(w.Calls, WeatherCall{At: at, Type: wt})
	if w.Err != nil {
		return nil, w.Err
	}
	if data, ok := w.Data[wt]; ok {
		return data, nil
	}
	return json.RawMessage(`{"results":[]}`), nil
}
