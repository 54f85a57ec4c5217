package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration. It is loaded once and passed
// explicitly at construction; no component reads the environment directly.
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion     string
	TableName     string
	GSI1Name      string // belongs-to index (gsi1pk, data)
	GSI2Name      string // type-partition index (gsi2pk, data)
	EventBusName  string
	MetricsEnable bool

	// Lambda configuration
	IsLambda bool

	// Authentication
	JWKSEndpoint string
	JWTIssuer    string
	JWTAudience  string

	// External gateways
	AssetGatewayURL   string
	UtilityGatewayURL string

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "eu-central-1"),
		TableName:     getEnv("TABLE_NAME", "meterhub"),
		GSI1Name:      getEnv("GSI1_NAME", "gsi1"),
		GSI2Name:      getEnv("GSI2_NAME", "gsi2"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "meterhub-events"),
		MetricsEnable: getEnvBool("ENABLE_METRICS", false),

		IsLambda: os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "",

		JWKSEndpoint: getEnv("JWKS_ENDPOINT", ""),
		JWTIssuer:    getEnv("JWT_ISSUER", ""),
		JWTAudience:  getEnv("JWT_AUDIENCE", "meterhub-api"),

		AssetGatewayURL:   getEnv("ASSET_GATEWAY_URL", ""),
		UtilityGatewayURL: getEnv("UTILITY_GATEWAY_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.TableName == "" {
		return fmt.Errorf("TABLE_NAME is required")
	}
	if c.Environment == "production" {
		if c.JWKSEndpoint == "" {
			return fmt.Errorf("JWKS_ENDPOINT is required in production")
		}
		if c.JWTIssuer == "" {
			return fmt.Errorf("JWT_ISSUER is required in production")
		}
	}
	return nil
}

// IsProduction checks if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
