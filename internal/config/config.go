package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "3s" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server struct {
		HTTPAddr string `yaml:"http_addr"`
		GRPCAddr string `yaml:"grpc_addr"`
	} `yaml:"server"`
	MySQL struct {
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		GroupID string   `yaml:"group_id"`
	} `yaml:"kafka"`
	Lock struct {
		Provider         string   `yaml:"provider"` // "redis" or "zookeeper"
		WaitTimeout      Duration `yaml:"wait_timeout"`
		LeaseTimeout     Duration `yaml:"lease_timeout"`
		ZookeeperServers []string `yaml:"zookeeper_servers"`
	} `yaml:"lock"`
	Worker struct {
		Count int `yaml:"count"`
	} `yaml:"worker"`
	Result struct {
		TTL Duration `yaml:"ttl"`
	} `yaml:"result"`
}

func Default() Config {
	var cfg Config
	cfg.Server.HTTPAddr = ":8080"
	cfg.Server.GRPCAddr = ":50051"
	cfg.MySQL.DSN = "root:root@tcp(localhost:3306)/timesale?parseTime=true"
	cfg.MySQL.MaxOpenConns = 50
	cfg.MySQL.MaxIdleConns = 25
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.PoolSize = 100
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = "time-sale-request"
	cfg.Kafka.GroupID = "time-sale-group"
	cfg.Lock.Provider = "redis"
	cfg.Lock.WaitTimeout = Duration(3 * time.Second)
	cfg.Lock.LeaseTimeout = Duration(3 * time.Second)
	cfg.Lock.ZookeeperServers = []string{"localhost:2181"}
	cfg.Worker.Count = 10
	cfg.Result.TTL = Duration(24 * time.Hour)
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file (path
// from CONFIG_PATH when the argument is empty), and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Server.HTTPAddr = getEnv("HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = getEnv("GRPC_ADDR", cfg.Server.GRPCAddr)
	cfg.MySQL.DSN = getEnv("MYSQL_DSN", cfg.MySQL.DSN)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Lock.Provider = getEnv("LOCK_PROVIDER", cfg.Lock.Provider)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
