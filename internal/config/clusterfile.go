package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/rotorhazard/clustercoord/internal/cluster"
)

// ClusterFile is the viper-loaded YAML document listing every configured
// secondary plus the tunable operational constants from §6, so they can be
// adjusted per deployment without recompiling.
type ClusterFile struct {
	Secondaries []cluster.SecondaryConfig `mapstructure:"secondaries"`
	Tuning      cluster.Tuning            `mapstructure:"tuning"`
}

// LoadClusterFile loads the cluster file from the given path. If path is
// empty, viper searches standard locations for cluster.yaml. Missing
// tuning fields are filled from cluster.DefaultTuning.
func LoadClusterFile(path string) (*ClusterFile, error) {
	v := viper.New()

	defaults := cluster.DefaultTuning()
	v.SetDefault("tuning.latency_window", defaults.LatencyWindow)
	v.SetDefault("tuning.skew_window", defaults.SkewWindow)
	v.SetDefault("tuning.skew_correction_threshold_ms", defaults.SkewCorrectionThresholdMs)
	v.SetDefault("tuning.forced_disconnect_threshold_ms", defaults.ForcedDisconnectThresholdMs)
	v.SetDefault("tuning.slow_retry_interval_secs", defaults.SlowRetryIntervalSecs)
	v.SetDefault("tuning.worker_tick_secs", defaults.WorkerTickSecs)
	v.SetDefault("tuning.transport_timeout_secs", defaults.TransportTimeoutSecs)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cluster")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/clustercoord")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return &ClusterFile{Tuning: defaults}, nil
		}
		if _, ok := err.(*os.PathError); ok {
			return &ClusterFile{Tuning: defaults}, nil
		}
		return nil, fmt.Errorf("failed to read cluster file: %w", err)
	}

	var cf ClusterFile
	if err := v.Unmarshal(&cf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cluster file: %w", err)
	}
	cf.Tuning.ApplyDefaults()
	for i := range cf.Secondaries {
		cf.Secondaries[i].Index = i
		cf.Secondaries[i].ApplyDefaults()
	}

	if err := cf.Validate(); err != nil {
		return nil, err
	}

	return &cf, nil
}

// Validate checks the cluster file's tuning parameters for valid ranges
// and validates every secondary's configuration.
func (cf *ClusterFile) Validate() error {
	if err := cf.Tuning.Validate(); err != nil {
		return err
	}

	for i := range cf.Secondaries {
		if err := cf.Secondaries[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}
