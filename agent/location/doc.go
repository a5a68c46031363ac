// Package location 实现位置 Agent：Extractor 让模型从对话中抽取最新地址并通过
// Azure Maps 地理编码，Assistant 在位置未知时向用户追问缺失信息。
package location
