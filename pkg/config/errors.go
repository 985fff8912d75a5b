package config

import "github.com/tokmz/wsx/pkg/errors"

// 配置包专用错误，错误码 3000 段
var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(3001, 500, "config file not found", nil)
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(3002, 500, "config read failed", nil)
	// ErrConfigDecodeFailed 配置解码失败
	ErrConfigDecodeFailed = errors.New(3003, 500, "config decode failed", nil)
)
