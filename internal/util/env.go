package util

import (
	"os"
	"strconv"
	"time"
)

// GetEnv 读取环境变量，缺省时返回 defaultVal
func GetEnv(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// GetEnvAsInt 读取整型环境变量，解析失败时返回 defaultVal
func GetEnvAsInt(key string, defaultVal int) int {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	val, err := strconv.Atoi(strVal)
	if err != nil {
		return defaultVal
	}
	return val
}

// GetEnvAsBool 读取布尔环境变量，解析失败时返回 defaultVal
func GetEnvAsBool(key string, defaultVal bool) bool {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	val, err := strconv.ParseBool(strVal)
	if err != nil {
		return defaultVal
	}
	return val
}

// GetEnvAsDuration 读取时长环境变量（Go duration 语法），解析失败时返回 defaultVal
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	val, err := time.ParseDuration(strVal)
	if err != nil {
		return defaultVal
	}
	return val
}
