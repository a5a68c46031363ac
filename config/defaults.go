// =============================================================================
// 📦 weatherbot 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Maps:      DefaultMapsConfig(),
		Cache:     DefaultCacheConfig(),
		Database:  DefaultDatabaseConfig(),
		Eval:      DefaultEvalConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:   "azure",
		Model:      "gpt-4o",
		Deployment: "gpt-4o",
		APIVersion: "2024-06-01",
		Timeout:    2 * time.Minute,
	}
}

// DefaultMapsConfig 返回默认 Azure Maps 配置
func DefaultMapsConfig() MapsConfig {
	return MapsConfig{
		BaseURL:    "https://atlas.microsoft.com",
		Timeout:    15 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		PoolSize:  10,
		LocalSize: 512,
		LocalTTL:  10 * time.Minute,
		TTL:       24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置（本地 sqlite 追踪库）
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "weatherbot.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DefaultEvalConfig 返回默认评测配置
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxTurns:            8,
		DefaultConversation: 3,
		Concurrency:         1,
		RetryLimit:          2,
		OutputDir:           "output",
		LogDir:              "logs",
		Tracking:            "file",
		TrackingDir:         "mlruns",
		Experiment:          "weather-chatbot",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "weatherbot",
		SampleRate:   0.1,
	}
}
