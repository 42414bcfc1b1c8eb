package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port                   string `env:"PORT" envDefault:"8080"`
	DBDriver               string `env:"DB_DRIVER" envDefault:"mysql"` // mysql or postgres
	DBUser                 string `env:"DB_USER,required,notEmpty"`
	DBPassword             string `env:"DB_PASSWORD,required,notEmpty"`
	DBHost                 string `env:"DB_HOST,required,notEmpty"` // e.g. tcp(host:3306), unix(/cloudsql/instance) or a plain host
	DBName                 string `env:"DB_NAME,required,notEmpty"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	AuthProvider          string `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase or jwt
	FirebaseProjectID     string `env:"FIREBASE_PROJECT_ID"`
	JWTSecret             string `env:"JWT_SECRET"`
	GoogleCredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE"`

	StorageBucket string `env:"STORAGE_BUCKET"`
	RedisURL      string `env:"REDIS_URL"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	MatchResponseWindow time.Duration `env:"MATCH_RESPONSE_WINDOW" envDefault:"48h"`
	MatchResultLimit    int           `env:"MATCH_RESULT_LIMIT" envDefault:"20"`

	ScoreWeightDate        float64 `env:"SCORE_WEIGHT_DATE" envDefault:"0.4"`
	ScoreWeightCapacity    float64 `env:"SCORE_WEIGHT_CAPACITY" envDefault:"0.3"`
	ScoreWeightReliability float64 `env:"SCORE_WEIGHT_RELIABILITY" envDefault:"0.3"`

	SupportedOrigins      []string `env:"SUPPORTED_ORIGINS" envSeparator:"," envDefault:"US,GB,CA,DE,FR,AE,CN,TR"`
	SupportedDestinations []string `env:"SUPPORTED_DESTINATIONS" envSeparator:"," envDefault:"NG,GH,KE,ZA,EG,MA,SN"`
	SupportedCurrencies   []string `env:"SUPPORTED_CURRENCIES" envSeparator:"," envDefault:"USD,GBP,EUR,CAD,NGN,GHS,KES,ZAR,AED,CNY"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
