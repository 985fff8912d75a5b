package logger

// Option 配置选项函数
type Option func(*Config)

// WithLevel 设置日志级别
func WithLevel(level Level) Option {
	return func(c *Config) { c.Level = level }
}

// WithFormat 设置日志格式
func WithFormat(format Format) Option {
	return func(c *Config) { c.Format = format }
}

// WithConsoleOutput 输出到标准输出
func WithConsoleOutput() Option {
	return func(c *Config) { c.Console = true }
}

// WithFileOutput 追加写入单个文件，不轮转
func WithFileOutput(filename string) Option {
	return func(c *Config) { c.File = filename }
}

// WithRotation 按大小轮转写入文件，其余参数取默认值
func WithRotation(filename string, maxSizeMB int) Option {
	return func(c *Config) {
		c.Rotate = &RotateConfig{Filename: filename, MaxSize: maxSizeMB}
	}
}

// WithSampling 每秒前 initial 条必记，之后每 thereafter 条记 1 条
func WithSampling(initial, thereafter int) Option {
	return func(c *Config) {
		c.Sampling = &SamplingConfig{Initial: initial, Thereafter: thereafter}
	}
}

// WithoutCaller 不记录调用位置
func WithoutCaller() Option {
	return func(c *Config) { c.DisableCaller = true }
}

// WithHook 添加 Hook，按添加顺序执行
func WithHook(hook Hook) Option {
	return func(c *Config) { c.Hooks = append(c.Hooks, hook) }
}
