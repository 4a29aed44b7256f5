package recorder

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fisker/zaudit-backend/pkg/logger"
	"github.com/fisker/zaudit-backend/pkg/metrics"
)

// ErrRecordingNotFound 指定会话没有录像
var ErrRecordingNotFound = errors.New("recording not found")

// EventType 事件类型
type EventType string

const (
	EventTypeOutput EventType = "o" // 输出
	EventTypeInput  EventType = "i" // 输入
)

// Header asciinema v2 文件头
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Env       map[string]string `json:"env,omitempty"`
}

type event struct {
	elapsed float64
	typ     EventType
	data    string
}

// Recorder 单个会话的录像器
// 写入路径与交互路径解耦：事件进入有界缓冲后立即返回，
// 落盘由独立 goroutine 完成；缓冲满或写盘失败只降级录像，不影响会话
type Recorder struct {
	streamID  string
	path      string
	startTime time.Time

	events chan event
	done   chan struct{}

	file *os.File
	gz   *gzip.Writer

	mu        sync.Mutex
	closed    bool // 事件通道已关闭，不再接收帧
	finalized bool // 文件已成功收尾

	dropped   atomic.Int64
	writeFail atomic.Bool
}

// NewRecorder 创建录像器并写入 asciinema 头部
// 录像文件：<dir>/<streamID>.cast.gz
func NewRecorder(dir, streamID string, width, height int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}

	path := filepath.Join(dir, streamID+".cast.gz")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	r := &Recorder{
		streamID:  streamID,
		path:      path,
		startTime: time.Now(),
		events:    make(chan event, 1024),
		done:      make(chan struct{}),
		file:      file,
		gz:        gzip.NewWriter(file),
	}

	header := Header{
		Version:   2,
		Width:     width,
		Height:    height,
		Timestamp: r.startTime.Unix(),
		Env:       map[string]string{"TERM": "xterm-256color"},
	}
	headerData, err := json.Marshal(header)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if _, err := r.gz.Write(append(headerData, '\n')); err != nil {
		file.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	go r.writeLoop()

	return r, nil
}

// RecordInput 记录输入帧（非阻塞）
func (r *Recorder) RecordInput(data string) {
	r.record(EventTypeInput, data)
}

// RecordOutput 记录输出帧（非阻塞）
func (r *Recorder) RecordOutput(data string) {
	r.record(EventTypeOutput, data)
}

func (r *Recorder) record(typ EventType, data string) {
	// 锁内投递，保证不会写已关闭的 channel；send 非阻塞，锁不会被长占
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.events <- event{
		elapsed: time.Since(r.startTime).Seconds(),
		typ:     typ,
		data:    data,
	}:
	default:
		// 缓冲满，丢帧并标记降级，绝不阻塞交互路径
		r.dropped.Add(1)
		metrics.RecorderDroppedFramesTotal.Inc()
	}
}

// writeLoop 异步落盘
func (r *Recorder) writeLoop() {
	defer close(r.done)

	for ev := range r.events {
		line, err := json.Marshal([]interface{}{ev.elapsed, string(ev.typ), ev.data})
		if err != nil {
			logger.Warnf("[Recorder] Failed to marshal event for %s: %v", r.streamID, err)
			continue
		}
		if _, err := r.gz.Write(append(line, '\n')); err != nil {
			// 写盘失败只降级录像，会话继续
			r.writeFail.Store(true)
			metrics.RecorderWriteErrorsTotal.Inc()
			logger.Warnf("[Recorder] Write failed for %s: %v", r.streamID, err)
		}
	}
}

// Finalize 结束录像并返回文件路径
// 幂等：成功之后重复调用返回相同路径，不会重复或截断已写入的数据；
// 收尾失败时保持失败态，重试仍然报错，绝不为残缺文件报成功
func (r *Recorder) Finalize() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return r.path, nil
	}

	// 先排空缓冲再关闭文件（flush-then-stop）；通道只关一次
	if !r.closed {
		r.closed = true
		close(r.events)
		<-r.done
	}

	if err := r.gz.Close(); err != nil {
		r.writeFail.Store(true)
		metrics.RecorderWriteErrorsTotal.Inc()
		return "", fmt.Errorf("close gzip writer: %w", err)
	}
	if err := r.file.Close(); err != nil {
		r.writeFail.Store(true)
		metrics.RecorderWriteErrorsTotal.Inc()
		return "", fmt.Errorf("close recording file: %w", err)
	}

	r.finalized = true
	logger.Infof("[Recorder] Recording finalized for %s: %s (dropped=%d)", r.streamID, r.path, r.dropped.Load())
	return r.path, nil
}

// Degraded 录像是否出现过丢帧或写入失败
func (r *Recorder) Degraded() bool {
	return r.dropped.Load() > 0 || r.writeFail.Load()
}
