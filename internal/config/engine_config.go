// Package config 从环境变量装配引擎配置
package config

import (
	"time"

	"github.com/kashguard/go-threshold-engine/internal/util"
)

// Engine 引擎全量配置
type Engine struct {
	ParticipantID int           `json:"participant_id"`
	Threshold     int           `json:"threshold"`
	Total         int           `json:"total"`
	SignTimeout   time.Duration `json:"sign_timeout"`
	EcdhTimeout   time.Duration `json:"ecdh_timeout"`
	PingTimeout   time.Duration `json:"ping_timeout"`
	SessionTTL    time.Duration `json:"session_ttl"`
	StatusTTL     time.Duration `json:"status_ttl"`

	API   API   `json:"api"`
	Redis Redis `json:"redis"`

	Logger Logger `json:"logger"`
}

// API HTTP 服务配置
type API struct {
	ListenAddress string `json:"listen_address"`
}

// Redis 会话记录存储配置，Enabled=false 时退回内存存储
type Redis struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	DB      int    `json:"db"`
}

// Logger 日志配置
type Logger struct {
	Level       string `json:"level"`
	PrettyPrint bool   `json:"pretty_print"`
}

// DefaultEngineConfigFromEnv 从环境变量读取配置，缺省值面向本地开发
func DefaultEngineConfigFromEnv() Engine {
	return Engine{
		ParticipantID: util.GetEnvAsInt("ENGINE_PARTICIPANT_ID", 1),
		Threshold:     util.GetEnvAsInt("ENGINE_THRESHOLD", 2),
		Total:         util.GetEnvAsInt("ENGINE_TOTAL", 3),
		SignTimeout:   util.GetEnvAsDuration("ENGINE_SIGN_TIMEOUT", 10*time.Second),
		EcdhTimeout:   util.GetEnvAsDuration("ENGINE_ECDH_TIMEOUT", 10*time.Second),
		PingTimeout:   util.GetEnvAsDuration("ENGINE_PING_TIMEOUT", 3*time.Second),
		SessionTTL:    util.GetEnvAsDuration("ENGINE_SESSION_TTL", 5*time.Minute),
		StatusTTL:     util.GetEnvAsDuration("ENGINE_STATUS_TTL", 24*time.Hour),
		API: API{
			ListenAddress: util.GetEnv("ENGINE_API_LISTEN", ":8080"),
		},
		Redis: Redis{
			Enabled: util.GetEnvAsBool("ENGINE_REDIS_ENABLED", false),
			Addr:    util.GetEnv("ENGINE_REDIS_ADDR", "localhost:6379"),
			DB:      util.GetEnvAsInt("ENGINE_REDIS_DB", 0),
		},
		Logger: Logger{
			Level:       util.GetEnv("ENGINE_LOG_LEVEL", "info"),
			PrettyPrint: util.GetEnvAsBool("ENGINE_LOG_PRETTY", false),
		},
	}
}
