// Package config loads process configuration from the environment,
// optionally via a .env file. Grounded on the teacher's scattered
// os.Getenv calls (main.go, rtmp_server.go, redis_cmds.go,
// control_connection.go), consolidated into a single typed struct per
// SPEC_FULL.md §4.8 "Config", still backed by the teacher's
// github.com/joho/godotenv.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the broker needs.
type Config struct {
	BindAddr    string
	Port        int
	MaxChunkSize uint32

	WindowAckSize uint32
	PeerBandwidth uint32

	MaxConnectionsPerIP int

	ControlCoordinatorURL string
	ControlSecret         string

	RedisUse      bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisChannel  string
	RedisTLS      bool

	DebugLog    bool
	RequestsLog bool
}

// Load reads a .env file if present (ignoring its absence, as the
// teacher does) and then layers environment variables on top, applying
// the same defaults the teacher's server wiring used.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		BindAddr:     getEnv("BIND_ADDRESS", "0.0.0.0"),
		Port:         getEnvInt("RTMP_PORT", 1935),
		MaxChunkSize: getEnvUint32("MAX_CHUNK_SIZE", 1480),

		WindowAckSize: getEnvUint32("WINDOW_ACK_SIZE", 5_000_000),
		PeerBandwidth: getEnvUint32("PEER_BANDWIDTH", 5_000_000),

		MaxConnectionsPerIP: getEnvInt("MAX_IP_CONNECTIONS", 4),

		ControlCoordinatorURL: os.Getenv("CONTROL_COORDINATOR_URL"),
		ControlSecret:         os.Getenv("CONTROL_SECRET"),

		RedisUse:      os.Getenv("REDIS_USE") == "YES",
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisChannel:  getEnv("REDIS_CHANNEL", "rtmp_commands"),
		RedisTLS:      os.Getenv("REDIS_TLS") == "YES",

		DebugLog:    os.Getenv("LOG_DEBUG") == "YES",
		RequestsLog: os.Getenv("LOG_REQUESTS") != "NO",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvUint32(key string, def uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}
