package config

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`

	Database Database `envPrefix:"DB_"`
	Gateway  Gateway  `envPrefix:"GATEWAY_"`
	Billing  Billing  `envPrefix:"BILLING_"`
	Auth     Auth     `envPrefix:"AUTH_"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"` // sqlite | mysql
	DSN    string `env:"DSN" envDefault:"billing.db"`
}

type Gateway struct {
	BaseApiURL   string `env:"BASE_API_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	WebhookID    string `env:"WEBHOOK_ID"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

type Billing struct {
	// DefaultCommissionPercent applies when a discount code does not
	// carry its own rate.
	DefaultCommissionPercent int `env:"DEFAULT_COMMISSION_PERCENT" envDefault:"5"`
	// SessionTTLMinutes bounds how long a checkout may stay pending
	// before the expiry sweeper cancels it.
	SessionTTLMinutes int `env:"SESSION_TTL_MINUTES" envDefault:"60"`
	SweepIntervalSec  int `env:"SWEEP_INTERVAL_SEC" envDefault:"60"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
