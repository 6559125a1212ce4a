/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"contract-run-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	busyTimeout, err := getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	dailyRate, err := getEnvDecimal("RUN_DAILY_RATE", decimal.RequireFromString("0.02"))
	if err != nil {
		return nil, err
	}

	referencePrincipal, err := getEnvDecimal("RUN_REFERENCE_PRINCIPAL", decimal.NewFromInt(2000))
	if err != nil {
		return nil, err
	}

	chunkInterval, err := getEnvDuration("RUN_CHUNK_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	maxDuration, err := getEnvDuration("RUN_MAX_DURATION", 22*time.Hour)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:             getEnvString("DATABASE_PATH", "contracts.db"),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			BusyTimeout:      busyTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Run: models.RunConfig{
			DailyRate:          dailyRate,
			ChunkInterval:      chunkInterval,
			MaxDuration:        maxDuration,
			ReferencePrincipal: referencePrincipal,
			PlansFile:          getEnvString("PLANS_FILE", "plans.yaml"),
		},
		Withdraw: models.WithdrawConfig{
			WindowStartHour: getEnvInt("WITHDRAW_WINDOW_START_HOUR", 23),
			WindowEndHour:   getEnvInt("WITHDRAW_WINDOW_END_HOUR", 1),
		},
		Server: models.ServerConfig{
			Addr:                   getEnvString("HTTP_ADDR", ":8080"),
			HeartbeatRatePerMinute: getEnvFloat("HEARTBEAT_RATE_PER_MINUTE", 30),
			HeartbeatBurst:         getEnvInt("HEARTBEAT_BURST", 5),
			ShutdownTimeout:        shutdownTimeout,
		},
		Sweeper: models.SweeperConfig{
			Interval: sweepInterval,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	if !cfg.Run.DailyRate.IsPositive() {
		return fmt.Errorf("RUN_DAILY_RATE must be positive, got %s", cfg.Run.DailyRate)
	}
	if !cfg.Run.ReferencePrincipal.IsPositive() {
		return fmt.Errorf("RUN_REFERENCE_PRINCIPAL must be positive, got %s", cfg.Run.ReferencePrincipal)
	}
	if cfg.Run.ChunkInterval <= 0 || cfg.Run.MaxDuration < cfg.Run.ChunkInterval {
		return fmt.Errorf("RUN_MAX_DURATION (%s) must be at least RUN_CHUNK_INTERVAL (%s)", cfg.Run.MaxDuration, cfg.Run.ChunkInterval)
	}
	for key, hour := range map[string]int{
		"WITHDRAW_WINDOW_START_HOUR": cfg.Withdraw.WindowStartHour,
		"WITHDRAW_WINDOW_END_HOUR":   cfg.Withdraw.WindowEndHour,
	} {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("%s must be between 0 and 23, got %d", key, hour)
		}
	}
	if cfg.Sweeper.Interval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL must not be negative")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
