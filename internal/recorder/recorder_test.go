package recorder

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// readCastLines 解压录像文件并返回所有行
func readCastLines(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("打开录像文件失败: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("创建gzip读取器失败: %v", err)
	}
	defer gz.Close()

	var lines []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("读取录像内容失败: %v", err)
	}
	return lines
}

// TestRecorderWritesAsciinemaFormat 录像文件为合法的 asciinema v2 格式
func TestRecorderWritesAsciinemaFormat(t *testing.T) {
	dir := t.TempDir()

	r, err := NewRecorder(dir, "stream-1", 120, 40)
	if err != nil {
		t.Fatalf("创建录像器失败: %v", err)
	}

	r.RecordOutput("$ ")
	r.RecordInput("ls\r")
	r.RecordOutput("file1  file2\r\n")

	path, err := r.Finalize()
	if err != nil {
		t.Fatalf("结束录像失败: %v", err)
	}

	lines := readCastLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("录像行数 = %d, 应该是 1 头部 + 3 事件", len(lines))
	}

	// 头部
	var header Header
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("头部解析失败: %v", err)
	}
	if header.Version != 2 || header.Width != 120 || header.Height != 40 {
		t.Errorf("头部 = %+v, version/width/height 应该是 2/120/40", header)
	}

	// 事件帧：[elapsed, type, data]
	var frame []interface{}
	if err := json.Unmarshal([]byte(lines[2]), &frame); err != nil {
		t.Fatalf("事件帧解析失败: %v", err)
	}
	if len(frame) != 3 || frame[1] != "i" || frame[2] != "ls\r" {
		t.Errorf("第二个事件帧 = %v, 应该是输入帧 ls\\r", frame)
	}
}

// TestRecorderFinalizeIdempotent 重复 Finalize 返回相同路径且不破坏文件
func TestRecorderFinalizeIdempotent(t *testing.T) {
	dir := t.TempDir()

	r, err := NewRecorder(dir, "stream-2", 80, 24)
	if err != nil {
		t.Fatalf("创建录像器失败: %v", err)
	}
	r.RecordOutput("hello")

	path1, err := r.Finalize()
	if err != nil {
		t.Fatalf("第一次 Finalize 失败: %v", err)
	}
	path2, err := r.Finalize()
	if err != nil {
		t.Fatalf("第二次 Finalize 失败: %v", err)
	}
	if path1 != path2 {
		t.Errorf("两次 Finalize 路径不同: %s vs %s", path1, path2)
	}

	// 文件内容完整且没有重复
	lines := readCastLines(t, path1)
	if len(lines) != 2 {
		t.Errorf("录像行数 = %d, 应该是 1 头部 + 1 事件", len(lines))
	}
}

// TestRecorderAfterFinalize 结束后的帧被忽略
func TestRecorderAfterFinalize(t *testing.T) {
	dir := t.TempDir()

	r, err := NewRecorder(dir, "stream-3", 80, 24)
	if err != nil {
		t.Fatalf("创建录像器失败: %v", err)
	}
	r.RecordOutput("before")

	path, err := r.Finalize()
	if err != nil {
		t.Fatalf("Finalize 失败: %v", err)
	}

	// 不应panic，也不应写入
	r.RecordOutput("after")
	r.RecordInput("after")

	lines := readCastLines(t, path)
	if len(lines) != 2 {
		t.Errorf("录像行数 = %d, 结束后的帧不应写入", len(lines))
	}
}

// TestRecorderDegraded 正常录制不降级
func TestRecorderDegraded(t *testing.T) {
	dir := t.TempDir()

	r, err := NewRecorder(dir, "stream-4", 80, 24)
	if err != nil {
		t.Fatalf("创建录像器失败: %v", err)
	}
	for i := 0; i < 100; i++ {
		r.RecordOutput("line\r\n")
	}
	if _, err := r.Finalize(); err != nil {
		t.Fatalf("Finalize 失败: %v", err)
	}

	if r.Degraded() {
		t.Error("正常录制不应标记降级")
	}
}

// TestManagerLifecycle 管理器的增查删
func TestManagerLifecycle(t *testing.T) {
	m := NewManager(t.TempDir())

	r, err := m.Open("stream-5", 80, 24)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, 应该是 1", m.Count())
	}

	got, ok := m.Get("stream-5")
	if !ok || got != r {
		t.Error("Get 应该返回同一个录像器")
	}

	if _, err := r.Finalize(); err != nil {
		t.Fatalf("Finalize 失败: %v", err)
	}
	// 落库后回收
	m.Remove("stream-5")
	if _, ok := m.Get("stream-5"); ok {
		t.Error("Remove 后不应再查到录像器")
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, 应该是 0", m.Count())
	}
}

// TestRecorderFinalizeCloseFailure 收尾写盘失败时不得报成功，重试同样报错
func TestRecorderFinalizeCloseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream-ro.cast.gz")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("创建文件失败: %v", err)
	}
	// 只读句柄，收尾 flush 时写入必然失败
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("打开文件失败: %v", err)
	}

	r := &Recorder{
		streamID:  "stream-ro",
		path:      path,
		startTime: time.Now(),
		events:    make(chan event, 16),
		done:      make(chan struct{}),
		file:      f,
		gz:        gzip.NewWriter(f),
	}
	go r.writeLoop()
	r.RecordOutput("ls -l\r\n")

	if _, err := r.Finalize(); err == nil {
		t.Fatal("写盘失败时 Finalize 应该报错")
	}
	if p, err := r.Finalize(); err == nil {
		t.Fatalf("收尾失败后的重试不应返回成功: %q", p)
	}
	if !r.Degraded() {
		t.Error("收尾失败的录像应标记为降级")
	}
}
