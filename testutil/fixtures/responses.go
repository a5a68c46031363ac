// =============================================================================
// 📦 测试数据工厂
// =============================================================================
// 预定义的地理编码结果、天气数据与对话历史
// =============================================================================
package fixtures

import (
	"encoding/json"

	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/types"
)

// Greeting 是生成对话的助手开场白
const Greeting = "Hello! How can I help you?"

// SeattleResult 返回一个高分的地理编码结果
func SeattleResult() maps.SearchResult {
	return maps.SearchResult{
		Type:     "Geography",
		Score:    0.95,
		Position: maps.Coordinates{Lat: 47.60357, Lon: -122.32945},
		Address: maps.Address{
			Country:            "United States",
			CountrySubdivision: "WA",
			Municipality:       "Seattle",
			FreeformAddress:    "Seattle, WA",
		},
	}
}

// LowScoreResult 返回一个低于阈值的地理编码结果
func LowScoreResult() maps.SearchResult {
	r := SeattleResult()
	r.Score = 0.3
	r.Address.FreeformAddress = "Seattle Ave"
	return r
}

// CurrentConditions 返回一段当前天气 JSON
func CurrentConditions() json.RawMessage {
	return json.RawMessage(`{"results":[{"phrase":"Cloudy","temperature":{"value":15.0,"unit":"C","unitType":17}}]}`)
}

// SeattleHistory 返回一段用户给出位置的对话
func SeattleHistory() []types.Message {
	return []types.Message{
		types.NewAssistantMessage(Greeting),
		types.NewUserMessage("What's the weather like in Seattle right now?"),
	}
}
