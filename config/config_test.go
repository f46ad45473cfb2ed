package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forever-free1/kvs/storage/bitcask"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvs.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置不合法: %v", err)
	}
	if cfg.Storage.CompactionThreshold != bitcask.DefaultCompactionThreshold {
		t.Errorf("默认阈值 = %d", cfg.Storage.CompactionThreshold)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/kvs
storage:
  compaction_threshold: 4096
  compression: true
  index_type: map
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.DataDir != "/var/lib/kvs" {
		t.Errorf("data_dir = %s", cfg.DataDir)
	}
	if cfg.Storage.CompactionThreshold != 4096 || !cfg.Storage.Compression || cfg.Storage.IndexType != "map" {
		t.Errorf("storage 配置不正确: %+v", cfg.Storage)
	}
	// 未配置的字段保留默认值
	if cfg.Storage.BloomFilterFP != 0.01 || cfg.Storage.BloomCapacity != 100000 {
		t.Errorf("默认值被覆盖: %+v", cfg.Storage)
	}
	if len(cfg.Options(cfg.Logger(&bytes.Buffer{}))) == 0 {
		t.Error("Options 为空")
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"index type": "storage:\n  index_type: btree\n",
		"threshold":  "storage:\n  compaction_threshold: -1\n",
		"level":      "logging:\n  level: loud\n",
		"fp":         "storage:\n  bloom_filter_fp: 2\n",
		"syntax":     "storage: [",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: 期望加载失败", name)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("不存在的文件应加载失败")
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logging.Level = "info"

	logger := cfg.Logger(&buf)
	logger.Debug().Msg("hidden")
	logger.Info().Str("key", "value").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("日志级别过滤不正确: %q", out)
	}
}
