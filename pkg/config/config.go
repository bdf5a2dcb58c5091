package config

import (
	"heimdall/internal/delivery/web"
	"heimdall/internal/keycloak"
	"heimdall/internal/repository"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Redis    repository.Config `envPrefix:"REDIS_"`
	Keycloak keycloak.Config   `envPrefix:"KEYCLOAK_"`
	Web      web.Config        `envPrefix:"HTTP_"`

	DiscordToken string `env:"DISCORD_TOKEN" envDefault:""`
	LogLevel     string `env:"LOGGER_LEVEL" envDefault:"debug"`
}

func ReadEnvConfig(cfg *Config) error {
	return env.Parse(cfg)
}
