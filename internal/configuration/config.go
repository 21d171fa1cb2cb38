package configuration

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	AppPort     int
	SocketPort  int
	SocketRoute string
}

type MongoConfig struct {
	URI                string
	Database           string
	MessagesCollection string
	CountersCollection string
	PresenceCollection string
}

// StorageConfig selects the persistence gateway implementation. Driver is
// "mongo" (default) or "memory"; the in-memory gateway keeps the same
// semantics without an external store.
type StorageConfig struct {
	Driver string
}

type LoggerConfig struct {
	Development bool
	Level       string
}

type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Storage StorageConfig
	Logger  LoggerConfig
}

// LoadConfig reads config/<filename>.yaml. Environment variables override
// file values (SERVER.APPPORT, MONGO.URI, ...).
func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "configuration.ParseConfig.Unmarshal")
	}
	return &c, nil
}
