/*
Package testutil 提供 weatherbot 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockProvider（LLM Provider，支持固定、脚本化与按提示词路由的响应）、
    MockGeocoder、MockWeatherSource
  - testutil/fixtures: 地理编码结果、天气 JSON 与对话历史样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithScript("Seattle, WA, United States")
	geo := &mocks.MockGeocoder{Results: []maps.SearchResult{fixtures.SeattleResult()}}
*/
package testutil
