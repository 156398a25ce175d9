package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName   string
		Build     string
		Env       string // DEV (local; default), TEST, QA, PROD
		Debug     bool
		TestMode  bool
		SecretKey string

		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		PasswordResetTimeoutDelta time.Duration

		RollbarToken   string
		SendgridApiKey string

		Server   ServerConfig
		Database DatabaseConfig
		Media    MediaConfig
		Scoring  ScoringConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		DisableReqLogs            bool
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MediaConfig struct {
		CloudinaryURL string
		Folder        string
		LocalDir      string // used instead of cloudinary in debug mode
		LocalBaseURL  string
	}

	ScoringConfig struct {
		Lookahead int
		MaxWPM    int
	}
)

// Address returns the "host:port" of the database server.
func (dc DatabaseConfig) Address() string {
	if dc.Port == "" {
		return dc.Host
	}
	return dc.Host + ":" + dc.Port
}

// NewConfig loads the config of the current ENV from defaults, an optional dotenv file and
// environment variables prefixed with the ENV name (eg. PROD_DATABASE_HOST).
func NewConfig() *Config {
	conf := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("app.name", "StenoLearn")
	conf.SetDefault("app.build", "develop")
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", env == "TEST")
	conf.SetDefault("secretKey", "lq+3#v8o1t@_ds(7&2k!pmy5w$4j^r0=zh9ecnxgu6fbia%-")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail.name", "StenoLearn")
	conf.SetDefault("defaultFromEmail.address", "noreply@localhost")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.disableReqLogs", false)
	conf.SetDefault("server.readTimeout", 5*time.Second)
	conf.SetDefault("server.writeTimeout", 10*time.Second)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "stenolearn")
	conf.SetDefault("database.user", "stenolearn")
	conf.SetDefault("database.password", "stenolearn")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("media.cloudinaryURL", "")
	conf.SetDefault("media.folder", "stenolearn/assignments")
	conf.SetDefault("media.localDir", filepath.Join(os.TempDir(), "stenolearn-media"))
	conf.SetDefault("media.localBaseURL", "/media")

	conf.SetDefault("scoring.lookahead", 4)
	conf.SetDefault("scoring.maxWPM", 300)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if p := os.Getenv("ENV_FILE"); p != "" {
		dotEnvPath = p
	}
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	conf.AutomaticEnv()

	return &Config{
		AppName:   conf.GetString("app.name"),
		Build:     conf.GetString("app.build"),
		Env:       env,
		Debug:     conf.GetBool("debug"),
		TestMode:  conf.GetBool("testMode"),
		SecretKey: conf.GetString("secretKey"),

		FrontendBaseURL: strings.TrimSuffix(conf.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: mail.Address{
			Name:    conf.GetString("defaultFromEmail.name"),
			Address: conf.GetString("defaultFromEmail.address"),
		},
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),

		RollbarToken:   conf.GetString("rollbarToken"),
		SendgridApiKey: conf.GetString("sendgridApiKey"),

		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Address:                   conf.GetString("server.address"),
			DebugHost:                 conf.GetString("server.debugHost"),
			DisableReqLogs:            conf.GetBool("server.disableReqLogs"),
			ReadTimeout:               conf.GetDuration("server.readTimeout"),
			WriteTimeout:              conf.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Media: MediaConfig{
			CloudinaryURL: conf.GetString("media.cloudinaryURL"),
			Folder:        conf.GetString("media.folder"),
			LocalDir:      conf.GetString("media.localDir"),
			LocalBaseURL:  conf.GetString("media.localBaseURL"),
		},
		Scoring: ScoringConfig{
			Lookahead: conf.GetInt("scoring.lookahead"),
			MaxWPM:    conf.GetInt("scoring.maxWPM"),
		},
	}
}
