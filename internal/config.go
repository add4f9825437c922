package internal

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 支援 "10m" 這類字串寫法的時長欄位
type Duration time.Duration

// UnmarshalYAML 實現 yaml 解碼
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("解析時長 %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 轉回標準庫型別
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int      `yaml:"port"`
		ReadTimeout  Duration `yaml:"read_timeout"`
		WriteTimeout Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Session struct {
		// 主持人斷線後的重連寬限期（到期即廢棄房間）
		HibernationGrace Duration `yaml:"hibernation_grace"`
		// 長視野的閒置上限：無論狀態，太久沒有活動的房間由掃描回收
		AbandonAfter Duration `yaml:"abandon_after"`
		// 閒置掃描間隔
		SweepInterval Duration `yaml:"sweep_interval"`
		// 每條連線的外送緩衝（滿了就略過該連線的本次發送）
		SendBuffer int `yaml:"send_buffer"`
	} `yaml:"session"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.Port = 8080
	config.Server.ReadTimeout = Duration(15 * time.Second)
	config.Server.WriteTimeout = Duration(15 * time.Second)
	config.Session.HibernationGrace = Duration(10 * time.Minute)
	config.Session.AbandonAfter = Duration(60 * time.Minute)
	config.Session.SweepInterval = Duration(1 * time.Minute)
	config.Session.SendBuffer = 256
	config.Log.Level = "info"
	config.Log.Format = "text"
	return config
}

// LoadConfig 從 YAML 載入配置，缺漏的欄位補上預設值
func LoadConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置: %w", err)
	}
	config.applyDefaults()
	return config, nil
}

// applyDefaults 補齊零值欄位
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaults.Server.WriteTimeout
	}
	if c.Session.HibernationGrace == 0 {
		c.Session.HibernationGrace = defaults.Session.HibernationGrace
	}
	if c.Session.AbandonAfter == 0 {
		c.Session.AbandonAfter = defaults.Session.AbandonAfter
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = defaults.Session.SweepInterval
	}
	if c.Session.SendBuffer == 0 {
		c.Session.SendBuffer = defaults.Session.SendBuffer
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}
