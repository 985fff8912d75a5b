package logger

import "go.uber.org/zap/zapcore"

// Format 日志格式：json（生产）或 console（开发）
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

func (f Format) String() string { return string(f) }

// IsValid 检查格式是否有效
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// Hook 日志钩子，返回错误时该条日志不会写出
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) error
}

// Config 日志配置，可直接由配置文件的 log 段解码
type Config struct {
	Level  Level  `mapstructure:"level"`  // 日志级别（默认 InfoLevel）
	Format Format `mapstructure:"format"` // 日志格式（json/console，默认 json）

	// 输出配置
	Console bool          `mapstructure:"console"` // 是否输出到控制台
	File    string        `mapstructure:"file"`    // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig `mapstructure:"rotate"`  // 轮转配置（nil 则不轮转）

	Sampling *SamplingConfig `mapstructure:"sampling"` // 采样配置（nil 则不采样）

	DisableCaller     bool `mapstructure:"disable_caller"`     // 不记录调用位置
	DisableStacktrace bool `mapstructure:"disable_stacktrace"` // 不记录 Error 及以上的堆栈

	Hooks []Hook `mapstructure:"-"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	// 没有任何输出时默认输出到控制台
	if !c.Console && c.File == "" && (c.Rotate == nil || c.Rotate.Filename == "") {
		c.Console = true
	}
}

// RotateConfig 文件轮转配置，交给 lumberjack
type RotateConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`    // MB，默认 100
	MaxAge     int    `mapstructure:"max_age"`     // 天，默认 30
	MaxBackups int    `mapstructure:"max_backups"` // 默认 10
	LocalTime  bool   `mapstructure:"local_time"`
	Compress   bool   `mapstructure:"compress"`
}

func (r *RotateConfig) setDefaults() {
	if r.MaxSize == 0 {
		r.MaxSize = 100
	}
	if r.MaxAge == 0 {
		r.MaxAge = 30
	}
	if r.MaxBackups == 0 {
		r.MaxBackups = 10
	}
}

// SamplingConfig 采样配置，连接多时 payload_decode_failed 之类的日志建议开启
type SamplingConfig struct {
	Initial    int `mapstructure:"initial"`    // 每秒前 N 条必定记录，默认 100
	Thereafter int `mapstructure:"thereafter"` // 之后每 M 条记录 1 条，默认 100
}

func (s *SamplingConfig) setDefaults() {
	if s.Initial == 0 {
		s.Initial = 100
	}
	if s.Thereafter == 0 {
		s.Thereafter = 100
	}
}
