package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Environment variables overriding the config file. They may also be set
// in a .env file next to the config file; real environment variables win.
const (
	EnvBluetoothAddress = "POWER2COLOR_BLUETOOTH_ADDRESS"
	EnvLEDType          = "POWER2COLOR_LED_TYPE"
	EnvLedsTotal        = "POWER2COLOR_LEDS_TOTAL"
	EnvLogLevel         = "POWER2COLOR_LOG_LEVEL"
)

func applyEnv(conf *Config) error {
	v := viper.New()
	v.AutomaticEnv()

	envFile := filepath.Join(filepath.Dir(conf.Configfile), ".env")
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("can't read %s: %w", envFile, err)
		}
	}

	if addr := v.GetString(EnvBluetoothAddress); addr != "" {
		conf.Bluetooth.Address = addr
	}
	if ledType := v.GetString(EnvLEDType); ledType != "" {
		conf.Hardware.LEDType = ledType
	}
	if v.IsSet(EnvLedsTotal) {
		conf.Hardware.Display.LedsTotal = v.GetInt(EnvLedsTotal)
	}
	if level := v.GetString(EnvLogLevel); level != "" {
		conf.Logging.TUI.Level = level
		conf.Logging.HW.Level = level
	}
	return nil
}
