package ingest

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Period time.Duration `envconfig:"INGEST_PERIOD" default:"10s"`
	Batch  int           `envconfig:"INGEST_BATCH" default:"100"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
