package config

// Option 配置选项函数
type Option func(*Config)

// WithConfigFile 指定配置文件完整路径，设置后忽略 WithSearch
func WithConfigFile(path string) Option {
	return func(c *Config) { c.configFile = path }
}

// WithSearch 按文件名（不含扩展名）在 paths 中依次查找配置文件
func WithSearch(name string, paths ...string) Option {
	return func(c *Config) {
		c.configName = name
		c.configPaths = paths
	}
}

// WithConfigType 显式指定文件类型（yaml、json、toml），文件无扩展名时需要
func WithConfigType(typ string) Option {
	return func(c *Config) { c.configType = typ }
}

// WithOptional 找不到配置文件时只使用默认值和环境变量
func WithOptional() Option {
	return func(c *Config) { c.optional = true }
}

// WithWatch Load 后监控配置文件，变更重新读取后调用 onChange（可为 nil）
func WithWatch(onChange func()) Option {
	return func(c *Config) {
		c.autoWatch = true
		c.onChange = onChange
	}
}

// WithDefaults 设置默认配置值，同时决定哪些键可被环境变量覆盖
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) { c.defaults = defaults }
}

// WithEnvPrefix 环境变量前缀，WSX_SOCKET_CODEC 对应 socket.codec
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) { c.envPrefix = prefix }
}
