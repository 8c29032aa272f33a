package keys

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Stdin reads the value to encrypt from standard input instead of the
	// command line, keeping it out of the shell history.
	Stdin bool `envconfig:"KEYS_FROM_STDIN" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
