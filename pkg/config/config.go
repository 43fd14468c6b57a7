package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type EtcdConfig struct {
	Endpoints   []string `mapstructure:"endpoints"`
	DialTimeout int      `mapstructure:"dial_timeout"` // seconds
	Prefix      string   `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type MongoDBConfig struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	ProductsCollection string `mapstructure:"products_collection"`
	AuditCollection    string `mapstructure:"audit_collection"`
}

type RoutingConfig struct {
	RouteBaseURL   string        `mapstructure:"route_base_url"`
	GeocodeBaseURL string        `mapstructure:"geocode_base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// DeliveryConfig prices the delivery leg: a flat base fee plus a fixed
// per-kilometer rate from the restaurant to the customer.
type DeliveryConfig struct {
	RestaurantLat float64 `mapstructure:"restaurant_lat"`
	RestaurantLng float64 `mapstructure:"restaurant_lng"`
	BaseFee       float64 `mapstructure:"base_fee"`
	PricePerKm    float64 `mapstructure:"price_per_km"`
}

type TrackingConfig struct {
	OrderPollInterval   time.Duration `mapstructure:"order_poll_interval"`
	CourierPollInterval time.Duration `mapstructure:"courier_poll_interval"`
	MoveThresholdKm     float64       `mapstructure:"move_threshold_km"`
}

type CheckoutConfig struct {
	// SubmitDelay is a presentation pause before reporting a successful
	// submission. Off (0) unless configured.
	SubmitDelay time.Duration `mapstructure:"submit_delay"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
