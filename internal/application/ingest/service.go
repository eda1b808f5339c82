// Package ingest 负责会话日志的发现、解析和入库
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/consearch/backend/internal/domain/conversation"
	"github.com/consearch/backend/internal/domain/events"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/consearch/backend/internal/infrastructure/watcher"
)

// 文件读取缓冲上限：单行最大 10MB，超长行视为畸形数据跳过
const maxLineBytes = 10 * 1024 * 1024

// fullScanThreshold 距上次全量扫描超过该时长，启动时才重新全量扫描
// 间隔内的变更由文件监听增量补齐
const fullScanThreshold = 10 * time.Minute

// ScanReport 全量扫描结果报告
// 失败按单元隔离计数，扫描本身不会因为个别失败而中止
type ScanReport struct {
	FilesScanned     int `json:"files_scanned"`
	FilesFailed      int `json:"files_failed"`
	RecordsInserted  int `json:"records_inserted"`
	RecordsSkipped   int `json:"records_skipped"`
	RecordsDuplicate int `json:"records_duplicate"`
	RecordsFailed    int `json:"records_failed"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Service 摄取服务
// 通过一次性全量扫描和持续文件监听，保持存储与磁盘上的会话文件同步
type Service struct {
	messageRepo conversation.MessageRepository
	offsetRepo  conversation.FileOffsetRepository
	fileWatcher *watcher.FileWatcher
	eventBus    events.EventBus
	scanMeta    *watcher.ScanMetadata
	projectsDir string
	logger      *slog.Logger

	// unsubscribe 监听事件的退订函数，StopWatching 时调用
	unsubscribe func()
}

// NewService 创建摄取服务
func NewService(
	messageRepo conversation.MessageRepository,
	offsetRepo conversation.FileOffsetRepository,
	fileWatcher *watcher.FileWatcher,
	eventBus events.EventBus,
	scanMeta *watcher.ScanMetadata,
	projectsDir string,
) *Service {
	return &Service{
		messageRepo: messageRepo,
		offsetRepo:  offsetRepo,
		fileWatcher: fileWatcher,
		eventBus:    eventBus,
		scanMeta:    scanMeta,
		projectsDir: projectsDir,
		logger:      log.NewModuleLogger("ingest", "service"),
	}
}

// ProgressFunc 扫描进度回调，processed/total 为文件计数
type ProgressFunc func(processed, total int, filePath string)

// sessionFileRef 待扫描的会话文件
type sessionFileRef struct {
	filePath    string
	projectPath string
}

// IndexAllConversations 全量扫描所有项目目录下的会话文件
func (s *Service) IndexAllConversations() (*ScanReport, error) {
	return s.IndexAllWithProgress(nil)
}

// IndexAllWithProgress 全量扫描，每处理完一个文件回调一次进度
// 单文件的失败计入报告后继续处理下一个文件，整体操作不会提前中止
func (s *Service) IndexAllWithProgress(progress ProgressFunc) (*ScanReport, error) {
	report := &ScanReport{StartedAt: time.Now()}

	if s.projectsDir == "" {
		return nil, fmt.Errorf("projects directory not configured")
	}

	entries, err := os.ReadDir(s.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			// 项目目录尚不存在：空报告，不算错误
			report.FinishedAt = time.Now()
			return report, nil
		}
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}

	// 先收集文件清单，进度回调才有确定的总数
	var files []sessionFileRef
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		projectDir := filepath.Join(s.projectsDir, entry.Name())
		projectPath := DecodeProjectPath(entry.Name())

		dirFiles, err := os.ReadDir(projectDir)
		if err != nil {
			s.logger.Warn("Failed to read project directory", "path", projectDir, "error", err)
			report.FilesFailed++
			continue
		}

		for _, file := range dirFiles {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".jsonl") {
				continue
			}
			files = append(files, sessionFileRef{
				filePath:    filepath.Join(projectDir, file.Name()),
				projectPath: projectPath,
			})
		}
	}

	for i, ref := range files {
		result, err := s.indexFile(ref.filePath, ref.projectPath)
		if err != nil {
			s.logger.Warn("Failed to index session file", "path", ref.filePath, "error", err)
			report.FilesFailed++
		} else {
			report.FilesScanned++
			report.RecordsInserted += result.inserted
			report.RecordsSkipped += result.skipped
			report.RecordsDuplicate += result.duplicate
			report.RecordsFailed += result.failed
		}

		if progress != nil {
			progress(i+1, len(files), ref.filePath)
		}
	}

	report.FinishedAt = time.Now()
	if s.scanMeta != nil {
		s.scanMeta.SetLastScanTime(report.FinishedAt)
	}

	s.logger.Info("Full scan finished",
		"files_scanned", report.FilesScanned,
		"files_failed", report.FilesFailed,
		"records_inserted", report.RecordsInserted,
		"records_skipped", report.RecordsSkipped,
		"records_failed", report.RecordsFailed,
	)
	return report, nil
}

// fileResult 单文件摄取结果
type fileResult struct {
	inserted  int
	skipped   int
	duplicate int
	failed    int
}

// indexFile 摄取单个会话文件
// 源文件是 append-only 的：只解析已提交行数之后的增量，
// 插入以 (session_id, line_index) 为唯一键，重复摄取是幂等的
func (s *Service) indexFile(filePath, projectPath string) (*fileResult, error) {
	sessionID := SessionIDFromFileName(filepath.Base(filePath))
	if sessionID == "" {
		return nil, fmt.Errorf("cannot derive session id from %s", filePath)
	}

	committedLines, err := s.offsetRepo.GetCommittedLines(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load committed offset: %w", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	// 固定本次读取的文件快照边界：写入方可能正在追加，
	// 只消费打开时已有的内容，末尾未换行的部分不计入已提交行数
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}
	fileSize := info.Size()

	endsWithNewline := false
	if fileSize > 0 {
		tail := make([]byte, 1)
		if _, err := f.ReadAt(tail, fileSize-1); err == nil {
			endsWithNewline = tail[0] == '\n'
		}
	}

	result := &fileResult{}
	scanner := bufio.NewScanner(io.NewSectionReader(f, 0, fileSize))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineIndex := 0
	for scanner.Scan() {
		line := scanner.Text()
		idx := lineIndex
		lineIndex++

		// 增量解析：已提交的行直接跳过
		if idx < committedLines {
			continue
		}

		msg, err := ParseLine(line, projectPath)
		if err != nil {
			// 畸形行是预期内的正常情况（文件可能正在写入）
			s.logger.Debug("Skipping unparseable line",
				"ref", formatLineRef(filePath, idx),
				"reason", err,
			)
			result.skipped++
			continue
		}

		msg.SessionID = sessionID
		msg.LineIndex = idx

		_, inserted, err := s.messageRepo.InsertMessage(msg)
		if err != nil {
			s.logger.Warn("Failed to insert message",
				"ref", formatLineRef(filePath, idx),
				"error", err,
			)
			result.failed++
			continue
		}
		if inserted {
			result.inserted++
		} else {
			result.duplicate++
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	// 只有整个文件读完才推进已提交行数。
	// 末行没有换行符时视为写入中的半行，不计入提交，
	// 下次事件会重新读取它（重复插入被唯一键挡掉，幂等）
	terminatedLines := lineIndex
	if !endsWithNewline {
		terminatedLines--
	}
	if terminatedLines > committedLines {
		if err := s.offsetRepo.SetCommittedLines(filePath, terminatedLines); err != nil {
			s.logger.Warn("Failed to persist committed offset", "path", filePath, "error", err)
		}
	}

	return result, nil
}

// NeedsFullScan 判断启动时是否需要全量扫描
// 上次扫描时间缺失或超过阈值时返回 true
func (s *Service) NeedsFullScan() bool {
	if s.scanMeta == nil {
		return true
	}
	last := s.scanMeta.GetLastScanTime()
	if last.IsZero() {
		return true
	}
	return time.Since(last) > fullScanThreshold
}

// StartWatching 启动持续监听
// 已在监听时重复调用是无害的 no-op
func (s *Service) StartWatching() error {
	if err := s.fileWatcher.Start(); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	if s.unsubscribe == nil {
		s.unsubscribe = s.eventBus.SubscribeMultiple(
			[]events.EventType{events.SessionFileCreated, events.SessionFileModified},
			events.HandlerFunc(s.HandleEvent),
		)
	}

	return nil
}

// StopWatching 停止持续监听
// 未启动或已停止时调用是安全的 no-op
func (s *Service) StopWatching() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.fileWatcher.Stop()
}

// IsWatching 当前是否处于监听状态
func (s *Service) IsWatching() bool {
	return s.fileWatcher.IsWatching()
}

// HandleEvent 处理会话文件变更事件：增量摄取变更的文件
func (s *Service) HandleEvent(event events.Event) error {
	fileEvent, ok := event.(*events.SessionFileEvent)
	if !ok {
		return nil
	}

	projectPath := DecodeProjectPath(fileEvent.ProjectDir)
	result, err := s.indexFile(fileEvent.FilePath, projectPath)
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", fileEvent.FilePath, err)
	}

	if result.inserted > 0 {
		s.logger.Info("Session file ingested",
			"session_id", fileEvent.SessionID,
			"inserted", result.inserted,
			"skipped", result.skipped,
		)
	}
	return nil
}
