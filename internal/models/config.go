package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Run      RunConfig
	Withdraw WithdrawConfig
	Server   ServerConfig
	Sweeper  SweeperConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	BusyTimeout      time.Duration
	CreateDummyUsers bool
}

// RunConfig holds the accrual parameters for run sessions
type RunConfig struct {
	DailyRate          decimal.Decimal
	ChunkInterval      time.Duration
	MaxDuration        time.Duration
	ReferencePrincipal decimal.Decimal
	PlansFile          string
}

// WithdrawConfig holds the UTC time-of-day window in which withdrawals are accepted
type WithdrawConfig struct {
	WindowStartHour int
	WindowEndHour   int
}

// ServerConfig holds HTTP surface settings
type ServerConfig struct {
	Addr                   string
	HeartbeatRatePerMinute float64
	HeartbeatBurst         int
	ShutdownTimeout        time.Duration
}

// SweeperConfig holds settings for the optional session sweeper.
// An Interval of zero disables it.
type SweeperConfig struct {
	Interval time.Duration
}
