package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const Name = "anancus"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host      string
		SshPort   int    `yaml:"sshPort"`
		HttpPort  int    `yaml:"httpPort"`
		SslDomain string `yaml:"sslDomain"`
		ActorName string `yaml:"actorName"`

		// Federation pipeline tuning
		BatchSize         int `yaml:"batchSize"`
		MaxRetries        int `yaml:"maxRetries"`
		WorkerIntervalSec int `yaml:"workerIntervalSec"`
		StaleMinutes      int `yaml:"staleMinutes"`

		// Inbound fixed-window rate limit
		RateWindowSec int `yaml:"rateWindowSec"`
		RateMaxCount  int `yaml:"rateMaxCount"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	if envHost := os.Getenv("ANANCUS_HOST"); envHost != "" {
		c.Conf.Host = envHost
	}
	if envSslDomain := os.Getenv("ANANCUS_SSLDOMAIN"); envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}
	if envActor := os.Getenv("ANANCUS_ACTORNAME"); envActor != "" {
		c.Conf.ActorName = envActor
	}

	overrideInt(&c.Conf.SshPort, "ANANCUS_SSHPORT")
	overrideInt(&c.Conf.HttpPort, "ANANCUS_HTTPPORT")
	overrideInt(&c.Conf.BatchSize, "ANANCUS_BATCHSIZE")
	overrideInt(&c.Conf.MaxRetries, "ANANCUS_MAXRETRIES")
	overrideInt(&c.Conf.WorkerIntervalSec, "ANANCUS_WORKERINTERVALSEC")
	overrideInt(&c.Conf.StaleMinutes, "ANANCUS_STALEMINUTES")
	overrideInt(&c.Conf.RateWindowSec, "ANANCUS_RATEWINDOWSEC")
	overrideInt(&c.Conf.RateMaxCount, "ANANCUS_RATEMAXCOUNT")

	return c, nil
}

func overrideInt(target *int, envName string) {
	env := os.Getenv(envName)
	if env == "" {
		return
	}
	v, err := strconv.Atoi(env)
	if err != nil {
		fmt.Println(err)
		return
	}
	*target = v
}
