// Package maps 封装 Azure Maps REST API，提供天气数据查询与地址地理编码。
//
// WeatherClient 按 WeatherType 访问 currentConditions / forecast/daily / severe/alerts 端点，
// SearchClient 调用 search/address 端点将自由文本地址解析为坐标。
// 两者都通过 llm/retry 对可重试的上游错误做指数退避重试。
package maps
