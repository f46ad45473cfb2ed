package bitcask

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/forever-free1/kvs/storage"
)

func frame(flags byte, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = flags
	binary.LittleEndian.PutUint32(buf[1:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

func TestCommand_EncodeDecode(t *testing.T) {
	for _, compress := range []bool{false, true} {
		for _, cmd := range []*Command{
			NewSetCommand("key", "value"),
			NewSetCommand("空格 与 换行\n", strings.Repeat("x", 4096)),
			NewRemoveCommand("key"),
			NewSetCommand("", "empty key"),
			NewRemoveCommand(""),
		} {
			data, err := cmd.Encode(compress)
			if err != nil {
				t.Fatalf("编码 %s 失败: %v", cmd, err)
			}
			if compress != (data[0]&FlagSnappy != 0) {
				t.Errorf("%s: 压缩标志不正确: %#x", cmd, data[0])
			}

			got, err := DecodeRecord(data)
			if err != nil {
				t.Fatalf("解码 %s 失败: %v", cmd, err)
			}
			if *got != *cmd {
				t.Errorf("解码结果不一致: got %s, want %s", got, cmd)
			}
		}
	}
}

func TestReadRecord_Sequential(t *testing.T) {
	var buf bytes.Buffer
	cmds := []*Command{
		NewSetCommand("a", "1"),
		NewRemoveCommand("a"),
		NewSetCommand("b", "2"),
	}
	var sizes []int
	for i, cmd := range cmds {
		data, err := cmd.Encode(i%2 == 1)
		if err != nil {
			t.Fatalf("编码失败: %v", err)
		}
		sizes = append(sizes, len(data))
		buf.Write(data)
	}

	remaining := int64(buf.Len())
	r := bytes.NewReader(buf.Bytes())
	for i, want := range cmds {
		got, size, err := readRecord(r, remaining)
		if err != nil {
			t.Fatalf("读取第 %d 条记录失败: %v", i, err)
		}
		if *got != *want || int(size) != sizes[i] {
			t.Errorf("第 %d 条: got %s (%d), want %s (%d)", i, got, size, want, sizes[i])
		}
		remaining -= int64(size)
	}

	if _, _, err := readRecord(r, remaining); err != io.EOF {
		t.Errorf("末尾应返回 io.EOF, 得到: %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid, err := NewSetCommand("k", "v").Encode(false)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	unknownType, err := encodeCommand(&Command{Type: "put", Key: "k"})
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	removeWithValue, err := encodeCommand(&Command{Type: CommandRemove, Key: "k", Value: "v"})
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	cases := map[string][]byte{
		"short header":      valid[:3],
		"short payload":     valid[:len(valid)-1],
		"trailing bytes":    append(append([]byte{}, valid...), 0x00),
		"unknown flag":      frame(0x80, valid[HeaderSize:]),
		"bad snappy":        frame(FlagSnappy, []byte{0xff, 0xff, 0xff}),
		"bad msgpack":       frame(0, []byte{0xc1, 0xc1}),
		"unknown type":      frame(0, unknownType),
		"remove with value": frame(0, removeWithValue),
	}

	for name, data := range cases {
		if _, err := DecodeRecord(data); !errors.Is(err, storage.ErrMalformedEntry) {
			t.Errorf("%s: 期望 ErrMalformedEntry, 得到: %v", name, err)
		}
	}
}

func TestReadRecord_PayloadBeyondEnd(t *testing.T) {
	// 头部声明 1 GiB 负载，不应分配也不应阻塞
	data := frame(0, nil)
	binary.LittleEndian.PutUint32(data[1:HeaderSize], 1<<30)

	_, _, err := readRecord(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, storage.ErrMalformedEntry) {
		t.Errorf("期望 ErrMalformedEntry, 得到: %v", err)
	}
}

func TestLogFile_AppendReadTruncate(t *testing.T) {
	lf, err := OpenLogFile(t.TempDir())
	if err != nil {
		t.Fatalf("打开日志失败: %v", err)
	}
	defer lf.Close()

	first, _ := NewSetCommand("a", "1").Encode(false)
	second, _ := NewSetCommand("b", "2").Encode(false)

	off1, err := lf.Append(first)
	if err != nil || off1 != 0 {
		t.Fatalf("第一次追加: offset %d, err %v", off1, err)
	}
	off2, err := lf.Append(second)
	if err != nil || off2 != int64(len(first)) {
		t.Fatalf("第二次追加: offset %d, err %v", off2, err)
	}

	// 定位读取不影响写入位置
	data, err := lf.ReadAt(off1, uint32(len(first)))
	if err != nil || !bytes.Equal(data, first) {
		t.Fatalf("ReadAt 失败: %v", err)
	}
	if lf.Size() != int64(len(first)+len(second)) {
		t.Errorf("写入位置被移动: %d", lf.Size())
	}

	if _, err := lf.ReadAt(off2, uint32(len(second))+1); !errors.Is(err, storage.ErrMalformedEntry) {
		t.Errorf("越界读取期望 ErrMalformedEntry, 得到: %v", err)
	}

	if err := lf.Truncate(); err != nil {
		t.Fatalf("截断失败: %v", err)
	}
	off, err := lf.Append(second)
	if err != nil || off != 0 {
		t.Errorf("截断后追加: offset %d, err %v", off, err)
	}

	var seen []string
	if err := lf.Scan(func(_ int64, _ uint32, cmd *Command) error {
		seen = append(seen, cmd.Key)
		return nil
	}); err != nil {
		t.Fatalf("Scan 失败: %v", err)
	}
	if len(seen) != 1 || seen[0] != "b" {
		t.Errorf("截断后记录不正确: %v", seen)
	}
}

func TestLogFile_Closed(t *testing.T) {
	lf, err := OpenLogFile(t.TempDir())
	if err != nil {
		t.Fatalf("打开日志失败: %v", err)
	}
	if err := lf.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if _, err := lf.Append([]byte{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("期望 ErrClosed, 得到: %v", err)
	}
	if err := lf.Scan(nil); !errors.Is(err, ErrClosed) {
		t.Errorf("期望 ErrClosed, 得到: %v", err)
	}
}

// faultyFile 包装真实文件，按设置让写入只完成一部分或让同步失败
type faultyFile struct {
	*os.File
	partialWrite bool // 下一次写入只写一半并返回错误
	failSync     bool
}

var errInjected = errors.New("injected failure")

func (f *faultyFile) Write(p []byte) (int, error) {
	if !f.partialWrite {
		return f.File.Write(p)
	}
	f.partialWrite = false
	n, err := f.File.Write(p[:len(p)/2])
	if err != nil {
		return n, err
	}
	return n, errInjected
}

func (f *faultyFile) Sync() error {
	if f.failSync {
		return errInjected
	}
	return f.File.Sync()
}

// injectFaults 用 faultyFile 替换日志文件的句柄
func injectFaults(t *testing.T, lf *LogFile) *faultyFile {
	t.Helper()
	file, ok := lf.File.(*os.File)
	if !ok {
		t.Fatalf("日志句柄类型为 %T", lf.File)
	}
	ff := &faultyFile{File: file}
	lf.File = ff
	return ff
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("获取文件状态失败: %v", err)
	}
	return info.Size()
}

func TestLogFile_PartialWriteRollsBack(t *testing.T) {
	lf, err := OpenLogFile(t.TempDir())
	if err != nil {
		t.Fatalf("打开日志失败: %v", err)
	}
	defer lf.Close()

	first, _ := NewSetCommand("a", "1").Encode(false)
	second, _ := NewSetCommand("b", strings.Repeat("2", 64)).Encode(false)
	if _, err := lf.Append(first); err != nil {
		t.Fatalf("追加失败: %v", err)
	}

	ff := injectFaults(t, lf)
	ff.partialWrite = true
	if _, err := lf.Append(second); !errors.Is(err, storage.ErrIO) {
		t.Fatalf("期望 ErrIO, 得到: %v", err)
	}
	if lf.Size() != int64(len(first)) {
		t.Errorf("写入位置 = %d, want %d", lf.Size(), len(first))
	}
	if got := fileSize(t, lf.Path()); got != int64(len(first)) {
		t.Errorf("文件大小 = %d, want %d", got, len(first))
	}

	// 残缺记录被截掉后，后续写入与回放都正常
	off, err := lf.Append(second)
	if err != nil || off != int64(len(first)) {
		t.Fatalf("再次追加: offset %d, err %v", off, err)
	}
	var seen []string
	if err := lf.Scan(func(_ int64, _ uint32, cmd *Command) error {
		seen = append(seen, cmd.Key)
		return nil
	}); err != nil {
		t.Fatalf("Scan 失败: %v", err)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("回放记录不正确: %v", seen)
	}
}
