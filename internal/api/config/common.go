package config

// Config 配置主体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Collab   CollabConfig   `mapstructure:"collab"`
	State    StateConfig    `mapstructure:"state"`
	Logstash LogstashConfig `mapstructure:"logstash"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RealtimeConfig 实时变更订阅配置
type RealtimeConfig struct {
	ConfigURL       string `mapstructure:"config_url"`       // 连接参数解析端点
	ExpectedBackend string `mapstructure:"expected_backend"` // 期望的后端标识，不匹配视为未启用
}

// CollabConfig 协作方 REST 接口配置
type CollabConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ServiceToken string `mapstructure:"service_token"`
	TimeoutSec   int    `mapstructure:"timeout_sec"`
}

// StateConfig 本地已读水位存储配置
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogstashConfig 远程日志配置
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}
