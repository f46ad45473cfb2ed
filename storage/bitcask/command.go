package bitcask

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/forever-free1/kvs/storage"
)

// CommandType 定义命令类型
type CommandType string

const (
	CommandSet    CommandType = "set"
	CommandRemove CommandType = "rm"
)

// Command 是写入日志的命令
// 一旦写入就不再修改，日志是它唯一的持久化形式
type Command struct {
	Type  CommandType `codec:"t"`
	Key   string      `codec:"k"`
	Value string      `codec:"v,omitempty"` // 仅 Set 使用
}

// msgpackHandle 在包内共享，配置完成后并发使用是安全的
var msgpackHandle = &codec.MsgpackHandle{}

// NewSetCommand 创建 Set 命令
func NewSetCommand(key, value string) *Command {
	return &Command{Type: CommandSet, Key: key, Value: value}
}

// NewRemoveCommand 创建 Remove 命令
func NewRemoveCommand(key string) *Command {
	return &Command{Type: CommandRemove, Key: key}
}

// IsSet 判断是否为 Set 命令
func (c *Command) IsSet() bool {
	return c.Type == CommandSet
}

// String 返回命令的可读形式
func (c *Command) String() string {
	if c.IsSet() {
		return fmt.Sprintf("Set(%q, %q)", c.Key, c.Value)
	}
	return fmt.Sprintf("Remove(%q)", c.Key)
}

func (c *Command) validate() error {
	if c.Type != CommandSet && c.Type != CommandRemove {
		return fmt.Errorf("%w: 未知的命令类型 %q", storage.ErrMalformedEntry, c.Type)
	}
	if c.Type == CommandRemove && c.Value != "" {
		return fmt.Errorf("%w: Remove 命令不应携带 value", storage.ErrMalformedEntry)
	}
	return nil
}

// encodeCommand 将 Command 编码为 msgpack 字节
func encodeCommand(cmd *Command) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, msgpackHandle)
	if err := enc.Encode(cmd); err != nil {
		return nil, fmt.Errorf("编码命令失败: %w", err)
	}
	return buf, nil
}

// decodeCommand 从 msgpack 字节解码 Command
func decodeCommand(data []byte) (*Command, error) {
	cmd := &Command{}
	dec := codec.NewDecoderBytes(data, msgpackHandle)
	if err := dec.Decode(cmd); err != nil {
		return nil, fmt.Errorf("%w: 解析命令失败: %v", storage.ErrMalformedEntry, err)
	}
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}
