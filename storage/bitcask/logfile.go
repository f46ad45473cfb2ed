package bitcask

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forever-free1/kvs/storage"
)

// LogFileName 是数据目录中日志文件的固定名称
const LogFileName = "kvs.log"

// fileHandle 是 LogFile 依赖的文件操作，*os.File 实现了它
type fileHandle interface {
	io.Writer
	io.ReaderAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

var _ fileHandle = (*os.File)(nil)

// LogFile 表示追加写入的命令日志
// 写入总是落在文件末尾；读取使用 ReadAt 或独立的 SectionReader，
// 不会移动写入位置
type LogFile struct {
	path     string
	File     fileHandle // 底层文件句柄
	WriteOff int64      // 下一次追加的偏移量，等于文件末尾
}

// OpenLogFile 打开或创建目录中的日志文件，不会截断已有内容
// 参数：
//   - dir: 文件所在目录
//
// 返回：
//   - *LogFile: 日志文件指针
//   - error: 打开错误
func OpenLogFile(dir string) (*LogFile, error) {
	path := filepath.Join(dir, LogFileName)

	// O_APPEND 保证每次写入都从文件末尾开始，截断后自动回到 0
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: 打开日志文件失败: %w", storage.ErrIO, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: 获取文件状态失败: %w", storage.ErrIO, err)
	}

	return &LogFile{
		path:     path,
		File:     file,
		WriteOff: stat.Size(),
	}, nil
}

// Append 追加写入一条记录
// 返回记录起始的偏移量；写入失败时截掉已写入的部分，文件保持原样
func (lf *LogFile) Append(data []byte) (int64, error) {
	if lf.File == nil {
		return 0, ErrClosed
	}

	offset := lf.WriteOff
	n, err := lf.File.Write(data)
	if err != nil {
		if n > 0 {
			if rerr := lf.rollback(offset); rerr != nil {
				// 截断也失败时，残缺记录留在文件中，写入位置必须跟随文件末尾
				lf.WriteOff = offset + int64(n)
				return offset, fmt.Errorf("%w: 写入日志失败: %w (回滚失败: %w)", storage.ErrIO, err, rerr)
			}
		}
		return offset, fmt.Errorf("%w: 写入日志失败: %w", storage.ErrIO, err)
	}
	lf.WriteOff += int64(n)
	return offset, nil
}

// rollback 把日志截断到 offset，丢弃之后写入的字节
func (lf *LogFile) rollback(offset int64) error {
	if lf.File == nil {
		return ErrClosed
	}
	if err := lf.File.Truncate(offset); err != nil {
		return fmt.Errorf("%w: 回滚日志到偏移量 %d 失败: %w", storage.ErrIO, offset, err)
	}
	lf.WriteOff = offset
	return nil
}

// ReadAt 从指定偏移量读取 size 字节
// 参数：
//   - offset: 读取起始偏移量
//   - size: 要读取的字节数
//
// 返回：
//   - []byte: 读取的数据
//   - error: 数据越过文件末尾时返回 ErrMalformedEntry
func (lf *LogFile) ReadAt(offset int64, size uint32) ([]byte, error) {
	if lf.File == nil {
		return nil, ErrClosed
	}

	data := make([]byte, size)
	n, err := lf.File.ReadAt(data, offset)
	if n == len(data) {
		return data, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: 偏移量 %d 处的记录越过文件末尾", storage.ErrMalformedEntry, offset)
	}
	return nil, fmt.Errorf("%w: 读取日志失败 (offset=%d, size=%d): %w", storage.ErrIO, offset, size, err)
}

// Scan 从偏移量 0 开始顺序回放整个日志
// fn 依次收到每条记录的起始偏移量、大小和命令；fn 返回错误时停止
// 任何无法解码的记录（包括结尾处不完整的记录）都会让 Scan 失败
func (lf *LogFile) Scan(fn func(offset int64, size uint32, cmd *Command) error) error {
	if lf.File == nil {
		return ErrClosed
	}

	end := lf.WriteOff
	r := bufio.NewReader(io.NewSectionReader(lf.File, 0, end))

	var offset int64
	for {
		cmd, size, err := readRecord(r, end-offset)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("偏移量 %d: %w", offset, err)
		}
		if err := fn(offset, size, cmd); err != nil {
			return err
		}
		offset += int64(size)
	}
}

// Truncate 清空日志并把写入位置重置为 0
// 仅在压缩时使用
func (lf *LogFile) Truncate() error {
	if lf.File == nil {
		return ErrClosed
	}
	if err := lf.File.Truncate(0); err != nil {
		return fmt.Errorf("%w: 截断日志失败: %w", storage.ErrIO, err)
	}
	lf.WriteOff = 0
	return nil
}

// Sync 将数据同步到磁盘
func (lf *LogFile) Sync() error {
	if lf.File == nil {
		return ErrClosed
	}
	if err := lf.File.Sync(); err != nil {
		return fmt.Errorf("%w: 同步数据到磁盘失败: %w", storage.ErrIO, err)
	}
	return nil
}

// Close 同步并关闭日志文件，重复关闭返回 nil
func (lf *LogFile) Close() error {
	if lf.File == nil {
		return nil
	}

	if err := lf.File.Sync(); err != nil {
		lf.File.Close()
		lf.File = nil
		return fmt.Errorf("%w: 关闭前同步数据失败: %w", storage.ErrIO, err)
	}
	err := lf.File.Close()
	lf.File = nil
	if err != nil {
		return fmt.Errorf("%w: 关闭文件失败: %w", storage.ErrIO, err)
	}
	return nil
}

// Size 返回日志当前大小
func (lf *LogFile) Size() int64 {
	return lf.WriteOff
}

// Path 返回日志文件的完整路径
func (lf *LogFile) Path() string {
	return lf.path
}
