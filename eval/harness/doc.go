// Package harness 把助手编排器包装成 conversation.Harness，供对话生成器调用，
// 并把会话状态（访问过的 Agent、地点、天气类别）暴露为快照属性。
package harness
