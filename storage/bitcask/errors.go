package bitcask

import "errors"

// ErrClosed 表示数据库已关闭
var ErrClosed = errors.New("db is closed")

// ErrInvalidOptions 表示配置选项不合法
var ErrInvalidOptions = errors.New("invalid options")
