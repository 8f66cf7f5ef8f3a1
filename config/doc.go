// Package config loads streamkit configuration.
//
// It uses Viper to read a config.yml and a .env file found in standard
// locations, then lets environment variables override individual keys
// (STREAM_HIGH_WATER_MARK overrides stream.high_water_mark).
//
// # Usage
//
//	var cfg config.Config
//	if err := config.LoadConfig("ingest", &cfg); err != nil {
//	    return err
//	}
//	cfg.ApplyDefaults()
//	r, err := stream.NewReadable(l, src, stream.WithConfig(cfg.Stream))
package config
