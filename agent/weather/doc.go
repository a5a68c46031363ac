// Package weather 实现天气 Agent：Extractor 将最近两条消息归类为
// CURRENT_CONDITIONS / DAILY_FORECAST / SEVERE_ALERTS，Assistant 按类别拉取
// Azure Maps 天气数据并结合对话记录作答。
package weather
