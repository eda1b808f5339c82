package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/consearch/backend/internal/domain/events"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/fsnotify/fsnotify"
)

// 监听器状态
const (
	stateStopped int32 = iota
	stateWatching
)

// WatchConfig FileWatcher 配置
type WatchConfig struct {
	// ProjectsDir 项目目录根（存放 <project>/<session>.jsonl）
	ProjectsDir string
	// DebounceDelay 防抖延迟：追加写入是高频事件，合并成批处理
	DebounceDelay time.Duration
}

// DefaultWatchConfig 返回默认配置
func DefaultWatchConfig(projectsDir string) WatchConfig {
	return WatchConfig{
		ProjectsDir:   projectsDir,
		DebounceDelay: 500 * time.Millisecond,
	}
}

// FileWatcher 会话文件监听器
// 监听项目根目录和所有项目子目录；新建的项目目录动态加入监听
// 同一时刻只允许一个监听循环，Start/Stop 互相串行，可并发调用
type FileWatcher struct {
	config   WatchConfig
	eventBus events.EventBus
	logger   *slog.Logger

	// lifecycleMu 串行化 Start/Stop，保证资源的创建和回收不交叉
	lifecycleMu sync.Mutex
	// state 监听状态（stateStopped / stateWatching），IsWatching 无锁读取
	state atomic.Int32

	// 以下字段仅在 Start 成功后有效，由 Stop 回收
	watcher   *fsnotify.Watcher
	closeOnce *sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup

	// 防抖相关
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex
}

// NewFileWatcher 创建文件监听器
func NewFileWatcher(config WatchConfig, eventBus events.EventBus) *FileWatcher {
	return &FileWatcher{
		config:         config,
		eventBus:       eventBus,
		logger:         log.NewModuleLogger("watcher", "file_watcher"),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// IsWatching 当前是否处于监听状态
func (fw *FileWatcher) IsWatching() bool {
	return fw.state.Load() == stateWatching
}

// Start 启动文件监听
// 已在监听时再次调用是无害的 no-op，并发调用 Start/Stop 是安全的
func (fw *FileWatcher) Start() error {
	fw.lifecycleMu.Lock()
	defer fw.lifecycleMu.Unlock()

	if fw.state.Load() == stateWatching {
		fw.logger.Debug("Watcher already running, start request ignored")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}

	fw.watcher = watcher
	fw.closeOnce = &sync.Once{}
	fw.stopCh = make(chan struct{})
	fw.debounceMu.Lock()
	fw.debounceTimers = make(map[string]*time.Timer)
	fw.debounceMu.Unlock()

	if err := fw.addWatchDirs(); err != nil {
		fw.closeWatcher()
		return err
	}

	fw.wg.Add(1)
	go fw.watchLoop()

	// 资源全部就绪后才对外发布监听状态
	fw.state.Store(stateWatching)

	fw.logger.Info("File watcher started", "projects_dir", fw.config.ProjectsDir)
	return nil
}

// Stop 停止文件监听
// 对未启动或已停止的监听器调用是安全的 no-op
func (fw *FileWatcher) Stop() {
	fw.lifecycleMu.Lock()
	defer fw.lifecycleMu.Unlock()

	if fw.state.Load() != stateWatching {
		return
	}
	fw.state.Store(stateStopped)

	close(fw.stopCh)
	// 关闭 OS 监听句柄会让事件通道关闭，循环随之退出
	fw.closeWatcher()
	fw.wg.Wait()

	// 取消所有未触发的防抖定时器
	fw.debounceMu.Lock()
	for _, timer := range fw.debounceTimers {
		timer.Stop()
	}
	fw.debounceTimers = make(map[string]*time.Timer)
	fw.debounceMu.Unlock()

	fw.logger.Info("File watcher stopped")
}

// closeWatcher 释放 OS 监听句柄，保证任何退出路径只关闭一次
func (fw *FileWatcher) closeWatcher() {
	fw.closeOnce.Do(func() {
		if err := fw.watcher.Close(); err != nil {
			fw.logger.Warn("Failed to close fs watcher", "error", err)
		}
	})
}

// addWatchDirs 注册监听目录：项目根 + 每个已存在的项目子目录
func (fw *FileWatcher) addWatchDirs() error {
	if fw.config.ProjectsDir == "" {
		return fmt.Errorf("projects directory not configured")
	}

	if err := fw.watcher.Add(fw.config.ProjectsDir); err != nil {
		return fmt.Errorf("failed to watch projects root %s: %w", fw.config.ProjectsDir, err)
	}

	entries, err := os.ReadDir(fw.config.ProjectsDir)
	if err != nil {
		// 根目录能监听但读不了内容，后续靠事件补齐
		fw.logger.Warn("Failed to enumerate project directories", "error", err)
		return nil
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(fw.config.ProjectsDir, entry.Name())
		if err := fw.watcher.Add(dir); err != nil {
			fw.logger.Debug("Failed to watch project directory", "path", dir, "error", err)
		}
	}

	return nil
}

// watchLoop 事件监听循环
// 唯一的长生命周期后台任务；退出时无条件释放监听句柄
func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()
	defer fw.closeWatcher()

	for {
		select {
		case <-fw.stopCh:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件
func (fw *FileWatcher) handleFsEvent(event fsnotify.Event) {
	if isSessionFile(event.Name) {
		if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
			fw.debounceSessionFileEvent(event)
		}
		return
	}

	// 项目根下新建目录：动态注册监听并发布事件
	if event.Has(fsnotify.Create) && fw.isProjectDir(event.Name) {
		info, err := os.Stat(event.Name)
		if err != nil || !info.IsDir() {
			return
		}

		if err := fw.watcher.Add(event.Name); err != nil {
			fw.logger.Warn("Failed to watch new project directory",
				"path", event.Name,
				"error", err,
			)
			return
		}

		fw.logger.Info("New project directory registered", "path", event.Name)
		fw.eventBus.Publish(&events.ProjectDirEvent{
			DirPath:   event.Name,
			EventTime: time.Now(),
		})
	}
}

// isSessionFile 判断是否为会话日志文件
func isSessionFile(path string) bool {
	return strings.HasSuffix(path, ".jsonl")
}

// isProjectDir 判断是否为项目根的直接子目录
func (fw *FileWatcher) isProjectDir(path string) bool {
	return filepath.Dir(path) == fw.config.ProjectsDir
}

// debounceSessionFileEvent 带防抖地处理会话文件事件
func (fw *FileWatcher) debounceSessionFileEvent(fsEvent fsnotify.Event) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.debounceTimers[fsEvent.Name]; exists {
		timer.Stop()
	}

	fw.debounceTimers[fsEvent.Name] = time.AfterFunc(fw.config.DebounceDelay, func() {
		fw.emitSessionFileEvent(fsEvent)

		fw.debounceMu.Lock()
		delete(fw.debounceTimers, fsEvent.Name)
		fw.debounceMu.Unlock()
	})
}

// emitSessionFileEvent 发布会话文件事件
func (fw *FileWatcher) emitSessionFileEvent(fsEvent fsnotify.Event) {
	sessionID, projectDir := ParseSessionFilePath(fsEvent.Name)
	if sessionID == "" {
		return
	}

	eventType := events.SessionFileModified
	if fsEvent.Has(fsnotify.Create) {
		eventType = events.SessionFileCreated
	}

	var fileSize int64
	if info, err := os.Stat(fsEvent.Name); err == nil {
		fileSize = info.Size()
	}

	fw.eventBus.Publish(&events.SessionFileEvent{
		EventType:  eventType,
		SessionID:  sessionID,
		ProjectDir: projectDir,
		FilePath:   fsEvent.Name,
		FileSize:   fileSize,
		EventTime:  time.Now(),
	})

	fw.logger.Debug("Session file event emitted",
		"type", eventType,
		"session_id", sessionID,
		"project_dir", projectDir,
	)
}

// ParseSessionFilePath 解析会话文件路径
// 输入：/Users/me/.claude/projects/-Users-me-code-myproject/abc123.jsonl
// 输出：sessionID="abc123", projectDir="-Users-me-code-myproject"
func ParseSessionFilePath(path string) (sessionID, projectDir string) {
	fileName := filepath.Base(path)
	if !strings.HasSuffix(fileName, ".jsonl") {
		return "", ""
	}
	sessionID = strings.TrimSuffix(fileName, ".jsonl")
	projectDir = filepath.Base(filepath.Dir(path))
	return sessionID, projectDir
}
