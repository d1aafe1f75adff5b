package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func lookupTrimmed(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	return value, value != ""
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return nil, nil
	}
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return nil, nil
	}
	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parsePositiveIntEnv 未设置时取默认值，非正数视为无效。
func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, strconv.Itoa(*val))
	}
	return *val, nil
}
