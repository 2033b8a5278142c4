package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Log      LogConfig
	Market   MarketConfig
	Solana   SolanaConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret          string
	AdminAddresses     []string
	ModeratorAddresses []string
	OperatorAddresses  []string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level    string
	Encoding string
}

// MarketConfig holds every tunable parameter of the pricing, fee and
// rate-limit engine. Amounts are integers in smallest token units
// (scale 1e6), percentages are basis points.
type MarketConfig struct {
	TreasuryAddress string

	MinPrice        int64
	MinInitialPrice int64
	MaxInitialPrice int64

	OpinionCreationFee int64
	PoolCreationFee    int64

	StandardIncreaseBps       int64
	CompetitiveIncreaseBps    int64
	CompetitiveMinIncreaseBps int64
	MaxStepIncreaseBps        int64

	PlatformFeeBps int64
	CreatorFeeBps  int64

	MaxTradesPerBlock int
	MEVWindow         int64
	MEVMaxPenaltyBps  int64

	QuestionMaxLen    int
	AnswerMaxLen      int
	DescriptionMaxLen int
	LinkMaxLen        int

	PoolManualExecution  bool
	BlockIntervalSeconds int
}

// SolanaConfig holds settings for the on-chain token ledger backend.
// When Enabled is false the in-memory ledger is used instead.
type SolanaConfig struct {
	Enabled               bool
	Network               string
	TokenMintAddress      string
	OperatorWalletKey     string
	EscrowAccountAddress  string
	RequiredConfirmations int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "opinion_market"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		App: AppConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			AdminAddresses:     getEnvList("ADMIN_ADDRESSES"),
			ModeratorAddresses: getEnvList("MODERATOR_ADDRESSES"),
			OperatorAddresses:  getEnvList("OPERATOR_ADDRESSES"),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Market: MarketConfig{
			TreasuryAddress:           getEnv("TREASURY_ADDRESS", ""),
			MinPrice:                  getEnvInt64("MIN_PRICE", 1_000_000),
			MinInitialPrice:           getEnvInt64("MIN_INITIAL_PRICE", 1_000_000),
			MaxInitialPrice:           getEnvInt64("MAX_INITIAL_PRICE", 100_000_000),
			OpinionCreationFee:        getEnvInt64("OPINION_CREATION_FEE", 5_000_000),
			PoolCreationFee:           getEnvInt64("POOL_CREATION_FEE", 2_000_000),
			StandardIncreaseBps:       getEnvInt64("STANDARD_INCREASE_BPS", 5000),
			CompetitiveIncreaseBps:    getEnvInt64("COMPETITIVE_INCREASE_BPS", 1200),
			CompetitiveMinIncreaseBps: getEnvInt64("COMPETITIVE_MIN_INCREASE_BPS", 800),
			MaxStepIncreaseBps:        getEnvInt64("MAX_STEP_INCREASE_BPS", 20000),
			PlatformFeeBps:            getEnvInt64("PLATFORM_FEE_BPS", 200),
			CreatorFeeBps:             getEnvInt64("CREATOR_FEE_BPS", 300),
			MaxTradesPerBlock:         getEnvInt("MAX_TRADES_PER_BLOCK", 3),
			MEVWindow:                 getEnvInt64("MEV_WINDOW", 30),
			MEVMaxPenaltyBps:          getEnvInt64("MEV_MAX_PENALTY_BPS", 2000),
			QuestionMaxLen:            getEnvInt("QUESTION_MAX_LEN", 52),
			AnswerMaxLen:              getEnvInt("ANSWER_MAX_LEN", 52),
			DescriptionMaxLen:         getEnvInt("DESCRIPTION_MAX_LEN", 120),
			LinkMaxLen:                getEnvInt("LINK_MAX_LEN", 256),
			PoolManualExecution:       getEnvBool("POOL_MANUAL_EXECUTION", false),
			BlockIntervalSeconds:      getEnvInt("BLOCK_INTERVAL_SECONDS", 12),
		},
		Solana: SolanaConfig{
			Enabled:               getEnvBool("SOLANA_LEDGER_ENABLED", false),
			Network:               getEnv("SOLANA_NETWORK", "devnet"),
			TokenMintAddress:      getEnv("SOLANA_TOKEN_MINT", ""),
			OperatorWalletKey:     getEnv("SOLANA_OPERATOR_WALLET_KEY", ""),
			EscrowAccountAddress:  getEnv("SOLANA_ESCROW_ACCOUNT", ""),
			RequiredConfirmations: getEnvInt("SOLANA_REQUIRED_CONFIRMATIONS", 1),
		},
	}

	if err := config.Market.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market configuration: %w", err)
	}

	return config, nil
}

// Validate enforces the parameter bounds the fee and pricing math relies on.
func (m *MarketConfig) Validate() error {
	if m.MinPrice <= 0 {
		return fmt.Errorf("MIN_PRICE must be positive, got %d", m.MinPrice)
	}
	if m.MinInitialPrice < m.MinPrice {
		return fmt.Errorf("MIN_INITIAL_PRICE %d below MIN_PRICE %d", m.MinInitialPrice, m.MinPrice)
	}
	if m.MaxInitialPrice < m.MinInitialPrice {
		return fmt.Errorf("MAX_INITIAL_PRICE %d below MIN_INITIAL_PRICE %d", m.MaxInitialPrice, m.MinInitialPrice)
	}
	if m.OpinionCreationFee < 0 || m.PoolCreationFee < 0 {
		return fmt.Errorf("creation fees must not be negative")
	}
	if m.PlatformFeeBps < 0 || m.PlatformFeeBps > 1000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be in [0, 1000], got %d", m.PlatformFeeBps)
	}
	if m.CreatorFeeBps < 0 || m.CreatorFeeBps > 1000 {
		return fmt.Errorf("CREATOR_FEE_BPS must be in [0, 1000], got %d", m.CreatorFeeBps)
	}
	if m.StandardIncreaseBps <= 0 || m.CompetitiveIncreaseBps <= 0 || m.CompetitiveMinIncreaseBps <= 0 {
		return fmt.Errorf("price increase parameters must be positive")
	}
	if m.MaxStepIncreaseBps < m.StandardIncreaseBps {
		return fmt.Errorf("MAX_STEP_INCREASE_BPS %d below STANDARD_INCREASE_BPS %d",
			m.MaxStepIncreaseBps, m.StandardIncreaseBps)
	}
	if m.MaxTradesPerBlock < 1 {
		return fmt.Errorf("MAX_TRADES_PER_BLOCK must be at least 1, got %d", m.MaxTradesPerBlock)
	}
	if m.MEVWindow <= 0 {
		return fmt.Errorf("MEV_WINDOW must be positive, got %d", m.MEVWindow)
	}
	if m.MEVMaxPenaltyBps < 0 || m.MEVMaxPenaltyBps > 10000 {
		return fmt.Errorf("MEV_MAX_PENALTY_BPS must be in [0, 10000], got %d", m.MEVMaxPenaltyBps)
	}
	if m.QuestionMaxLen <= 0 || m.AnswerMaxLen <= 0 || m.DescriptionMaxLen <= 0 || m.LinkMaxLen <= 0 {
		return fmt.Errorf("text length limits must be positive")
	}
	if m.BlockIntervalSeconds <= 0 {
		return fmt.Errorf("BLOCK_INTERVAL_SECONDS must be positive, got %d", m.BlockIntervalSeconds)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
