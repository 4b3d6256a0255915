// Package files implements the chunked file transfer engine (C6): listing,
// chunked download, stateful multi-chunk upload reassembly, and delete, all
// correlated by request id.
package files

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/nodecastle/edgeagent/internal/logger"
	"github.com/nodecastle/edgeagent/internal/platform"
	"github.com/nodecastle/edgeagent/internal/protocol"
)

// DownloadChunkSize is the maximum number of file bytes carried by a single
// FILE_DOWNLOAD_DATA frame; the frame payload adds an 8-byte seq/total prefix.
const DownloadChunkSize = 64 * 1024

// Sink is how the engine emits reply frames; satisfied by the connector's
// outbound queue or the IPC writer.
type Sink interface {
	Send(protocol.Frame) error
}

// PendingUpload tracks an in-flight upload keyed by request id.
type PendingUpload struct {
	Path         string
	ExpectedSize int64
	Checksum     string
	Buf          []byte
}

// Engine is the file transfer engine. It is safe for concurrent use from
// the router goroutine only for dispatch; pending upload state is
// mutex-protected since uploads may interleave with other control traffic.
type Engine struct {
	fs   platform.Filesystem
	sink Sink

	mu      sync.Mutex
	pending map[uint32]*PendingUpload
}

// New creates a file transfer engine bound to fs and sink.
func New(fs platform.Filesystem, sink Sink) *Engine {
	return &Engine{fs: fs, sink: sink, pending: make(map[uint32]*PendingUpload)}
}

// Handle dispatches one decoded control-plane frame to the matching operation.
func (e *Engine) Handle(f protocol.Frame) {
	var err error
	switch f.Type {
	case protocol.OpFileListReq:
		err = e.handleList(f)
	case protocol.OpFileDownloadReq:
		err = e.handleDownload(f)
	case protocol.OpFileUploadStart:
		err = e.handleUploadStart(f)
	case protocol.OpFileUploadData:
		e.handleUploadData(f)
		return
	case protocol.OpFileDeleteReq:
		err = e.handleDelete(f)
	default:
		return
	}
	if err != nil {
		e.replyError(f.RequestID, err)
	}
}

func (e *Engine) replyError(requestID uint32, err error) {
	logger.Warn("file engine error", "error", err)
	frame, merr := protocol.ControlJSON(protocol.OpFileResult, requestID, protocol.FileResult{
		Success: false,
		Error:   err.Error(),
	})
	if merr != nil {
		return
	}
	_ = e.sink.Send(frame)
}

func (e *Engine) handleList(f protocol.Frame) error {
	var req protocol.FileListRequest
	if err := f.ParseJSON(&req); err != nil {
		return fmt.Errorf("parse FILE_LIST_REQ: %w", err)
	}
	entries, err := e.fs.ListDir(req.Path)
	if err != nil {
		return err
	}

	out := make([]protocol.FileEntry, 0, len(entries))
	for _, m := range entries {
		out = append(out, protocol.FileEntry{
			Name:        m.Name,
			Path:        filepath.Join(req.Path, m.Name),
			IsDir:       m.IsDir,
			Size:        m.Size,
			Modified:    m.ModTime.Unix(),
			Permissions: m.Permissions,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	frame, err := protocol.ControlJSON(protocol.OpFileListResp, f.RequestID, out)
	if err != nil {
		return err
	}
	return e.sink.Send(frame)
}

func (e *Engine) handleDownload(f protocol.Frame) error {
	var req protocol.FileDownloadRequest
	if err := f.ParseJSON(&req); err != nil {
		return fmt.Errorf("parse FILE_DOWNLOAD_REQ: %w", err)
	}
	data, err := e.fs.ReadFile(req.Path)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		payload := protocol.EncodeFileDownloadChunk(0, 1, nil)
		return e.sink.Send(protocol.Control(protocol.OpFileDownloadData, f.RequestID, payload))
	}

	total := uint32((len(data) + DownloadChunkSize - 1) / DownloadChunkSize)
	for seq := uint32(0); seq < total; seq++ {
		start := int(seq) * DownloadChunkSize
		end := start + DownloadChunkSize
		if end > len(data) {
			end = len(data)
		}
		payload := protocol.EncodeFileDownloadChunk(seq, total, data[start:end])
		if err := e.sink.Send(protocol.Control(protocol.OpFileDownloadData, f.RequestID, payload)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleUploadStart(f protocol.Frame) error {
	var req protocol.FileUploadStart
	if err := f.ParseJSON(&req); err != nil {
		return fmt.Errorf("parse FILE_UPLOAD_START: %w", err)
	}
	e.mu.Lock()
	e.pending[f.RequestID] = &PendingUpload{Path: req.Path, ExpectedSize: req.Size, Checksum: req.Checksum}
	e.mu.Unlock()

	frame, err := protocol.ControlJSON(protocol.OpFileResult, f.RequestID, protocol.FileResult{Success: true})
	if err != nil {
		return err
	}
	return e.sink.Send(frame)
}

func (e *Engine) handleUploadData(f protocol.Frame) {
	_, chunk, err := protocol.DecodeFileUploadChunk(f.Payload)
	if err != nil {
		logger.Warn("malformed FILE_UPLOAD_DATA", "error", err)
		return
	}

	e.mu.Lock()
	pending, ok := e.pending[f.RequestID]
	if !ok {
		e.mu.Unlock()
		logger.Warn("FILE_UPLOAD_DATA for unknown request id, dropping", "request_id", f.RequestID)
		return
	}
	pending.Buf = append(pending.Buf, chunk...)
	done := int64(len(pending.Buf)) >= pending.ExpectedSize
	if done {
		delete(e.pending, f.RequestID)
	}
	e.mu.Unlock()

	if !done {
		return
	}

	if pending.Checksum != "" {
		if err := verifyChecksum(pending.Buf, pending.Checksum); err != nil {
			e.replyUploadDone(f.RequestID, false, err.Error())
			return
		}
	}

	if err := e.fs.WriteFile(pending.Path, pending.Buf); err != nil {
		e.replyUploadDone(f.RequestID, false, err.Error())
		return
	}
	e.replyUploadDone(f.RequestID, true, "")
}

// verifyChecksum compares want, a hex-encoded BLAKE2b-256 digest, against
// the digest of data.
func verifyChecksum(data []byte, want string) error {
	sum := blake2b.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if got != strings.ToLower(want) {
		return fmt.Errorf("checksum mismatch: want %s, got %s", want, got)
	}
	return nil
}

func (e *Engine) replyUploadDone(requestID uint32, success bool, errMsg string) {
	frame, err := protocol.ControlJSON(protocol.OpFileUploadDone, requestID, protocol.FileUploadDone{
		Success: success,
		Error:   errMsg,
	})
	if err != nil {
		return
	}
	_ = e.sink.Send(frame)
}

func (e *Engine) handleDelete(f protocol.Frame) error {
	var req protocol.FileDeleteRequest
	if err := f.ParseJSON(&req); err != nil {
		return fmt.Errorf("parse FILE_DELETE_REQ: %w", err)
	}
	if err := e.fs.Delete(req.Path); err != nil {
		return err
	}
	frame, err := protocol.ControlJSON(protocol.OpFileResult, f.RequestID, protocol.FileResult{Success: true})
	if err != nil {
		return err
	}
	return e.sink.Send(frame)
}
