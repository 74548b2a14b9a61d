package config

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server    Server
	Database  Database
	Cache     Cache
	Redis     Redis
	Assembler Assembler
	Metrics   Metrics
	LogLevel  string
}

type Server struct {
	Port string
	Mode string
}

type Database struct {
	Driver   string // postgres | sqlite
	Host     string
	Port     string
	User     string
	Password string `json:"-"`
	Name     string
	Path     string // sqlite file
}

type Cache struct {
	Driver    string // file | redis
	Dir       string
	Namespace string
}

type Redis struct {
	Addr     string
	Password string `json:"-"`
	DB       int
}

type Assembler struct {
	Seed uint64
}

type Metrics struct {
	Enabled bool
}

func NewConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_MODE", "debug")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("DATABASE_PATH", "examprep.db")
	viper.SetDefault("CACHE_DRIVER", "file")
	viper.SetDefault("CACHE_DIR", ".cache/results")
	viper.SetDefault("CACHE_NAMESPACE", "default")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("METRICS_ENABLED", true)

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Server.Mode = viper.GetString("SERVER_MODE")
	config.LogLevel = viper.GetString("LOG_LEVEL")

	config.Database.Driver = viper.GetString("DATABASE_DRIVER")
	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")
	config.Database.Path = viper.GetString("DATABASE_PATH")

	config.Cache.Driver = viper.GetString("CACHE_DRIVER")
	config.Cache.Dir = viper.GetString("CACHE_DIR")
	config.Cache.Namespace = viper.GetString("CACHE_NAMESPACE")

	config.Redis.Addr = viper.GetString("REDIS_ADDR")
	config.Redis.Password = viper.GetString("REDIS_PASSWORD")
	config.Redis.DB = viper.GetInt("REDIS_DB")

	config.Assembler.Seed = viper.GetUint64("ASSEMBLER_SEED")
	config.Metrics.Enabled = viper.GetBool("METRICS_ENABLED")

	log.Info().Interface("config", config).Msg("Config loaded")
	return &config, nil
}
