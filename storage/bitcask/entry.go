package bitcask

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"github.com/forever-free1/kvs/storage"
)

// 日志记录格式：| Flags (1B) | PayloadSize (4B) | Payload |
// Payload 是 msgpack 编码的 Command，Flags 标记负载是否经过 snappy 压缩
const HeaderSize = 5

const (
	// FlagSnappy 负载经过 snappy 压缩
	FlagSnappy byte = 1 << 0

	knownFlags = FlagSnappy
)

// Encode 将命令编码为一条完整的日志记录
// 参数：
//   - compress: 是否使用 snappy 压缩负载
//
// 返回：
//   - []byte: 记录字节
//   - error: 编码错误
func (c *Command) Encode(compress bool) ([]byte, error) {
	payload, err := encodeCommand(c)
	if err != nil {
		return nil, err
	}

	var flags byte
	if compress {
		payload = snappy.Encode(nil, payload)
		flags |= FlagSnappy
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = flags
	binary.LittleEndian.PutUint32(buf[1:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// DecodeRecord 解码一条完整的日志记录
// data 的长度必须与记录头声明的长度一致
func DecodeRecord(data []byte) (*Command, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: 记录长度 %d 小于头部大小", storage.ErrMalformedEntry, len(data))
	}
	flags, size, err := decodeHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}
	if want := HeaderSize + int(size); len(data) != want {
		return nil, fmt.Errorf("%w: 记录长度 %d 与声明长度 %d 不一致", storage.ErrMalformedEntry, len(data), want)
	}
	return decodePayload(flags, data[HeaderSize:])
}

func decodeHeader(hdr []byte) (byte, uint32, error) {
	flags := hdr[0]
	if flags&^knownFlags != 0 {
		return 0, 0, fmt.Errorf("%w: 未知的记录标志 %#x", storage.ErrMalformedEntry, flags)
	}
	return flags, binary.LittleEndian.Uint32(hdr[1:HeaderSize]), nil
}

func decodePayload(flags byte, payload []byte) (*Command, error) {
	if flags&FlagSnappy != 0 {
		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: 解压负载失败: %v", storage.ErrMalformedEntry, err)
		}
		payload = raw
	}
	return decodeCommand(payload)
}

// readRecord 从顺序读取器中读出下一条记录
// 参数：
//   - r: 读取器
//   - remaining: 读取器中剩余的字节数，用于拒绝越界的负载长度
//
// 返回：
//   - *Command: 解码后的命令
//   - uint32: 记录总大小
//   - error: 干净地读到文件末尾时返回 io.EOF
func readRecord(r io.Reader, remaining int64) (*Command, uint32, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		switch {
		case err == io.EOF:
			return nil, 0, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, 0, fmt.Errorf("%w: 记录头不完整", storage.ErrMalformedEntry)
		default:
			return nil, 0, fmt.Errorf("%w: 读取记录头失败: %w", storage.ErrIO, err)
		}
	}

	flags, size, err := decodeHeader(hdr[:])
	if err != nil {
		return nil, 0, err
	}
	if int64(HeaderSize)+int64(size) > remaining {
		return nil, 0, fmt.Errorf("%w: 负载长度 %d 超出文件末尾", storage.ErrMalformedEntry, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, fmt.Errorf("%w: 负载不完整", storage.ErrMalformedEntry)
		}
		return nil, 0, fmt.Errorf("%w: 读取负载失败: %w", storage.ErrIO, err)
	}

	cmd, err := decodePayload(flags, payload)
	if err != nil {
		return nil, 0, err
	}
	return cmd, HeaderSize + size, nil
}
