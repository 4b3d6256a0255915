package files

import (
	"encoding/hex"
	"sync"
	"testing"

	"golang.org/x/crypto/blake2b"

	"github.com/nodecastle/edgeagent/internal/platform"
	"github.com/nodecastle/edgeagent/internal/protocol"
)

type fakeFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeFS() *fakeFS { return &fakeFS{files: make(map[string][]byte)} }

func (f *fakeFS) ListDir(path string) ([]platform.FileMetadata, error) { return nil, nil }
func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path], nil
}
func (f *fakeFS) WriteFile(path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), data...)
	f.files[path] = cp
	return nil
}
func (f *fakeFS) Delete(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}
func (f *fakeFS) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}
func (f *fakeFS) Metadata(path string) (platform.FileMetadata, error) {
	return platform.FileMetadata{}, nil
}

type fakeSink struct {
	mu     sync.Mutex
	frames []protocol.Frame
}

func (s *fakeSink) Send(f protocol.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSink) framesOfType(op protocol.Opcode) []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Frame
	for _, f := range s.frames {
		if f.Type == op {
			out = append(out, f)
		}
	}
	return out
}

func TestUploadReassembly(t *testing.T) {
	fs := newFakeFS()
	sink := &fakeSink{}
	engine := New(fs, sink)

	startFrame, _ := protocol.ControlJSON(protocol.OpFileUploadStart, 42, protocol.FileUploadStart{
		Path: "/tmp/x", Size: 5,
	})
	engine.Handle(startFrame)

	results := sink.framesOfType(protocol.OpFileResult)
	if len(results) != 1 {
		t.Fatalf("expected 1 FILE_RESULT ack, got %d", len(results))
	}
	var res protocol.FileResult
	if err := results[0].ParseJSON(&res); err != nil || !res.Success {
		t.Fatalf("expected success ack: %+v err=%v", res, err)
	}

	chunk1 := protocol.Control(protocol.OpFileUploadData, 42, protocol.EncodeFileUploadChunk(0, []byte("AB")))
	engine.Handle(chunk1)
	chunk2 := protocol.Control(protocol.OpFileUploadData, 42, protocol.EncodeFileUploadChunk(1, []byte("CDE")))
	engine.Handle(chunk2)

	if got := string(fs.files["/tmp/x"]); got != "ABCDE" {
		t.Fatalf("file contents = %q, want ABCDE", got)
	}

	dones := sink.framesOfType(protocol.OpFileUploadDone)
	if len(dones) != 1 {
		t.Fatalf("expected exactly one FILE_UPLOAD_DONE, got %d", len(dones))
	}
	var done protocol.FileUploadDone
	if err := dones[0].ParseJSON(&done); err != nil || !done.Success {
		t.Fatalf("expected success done: %+v err=%v", done, err)
	}
}

func TestUploadRejectsChecksumMismatch(t *testing.T) {
	fs := newFakeFS()
	sink := &fakeSink{}
	engine := New(fs, sink)

	startFrame, _ := protocol.ControlJSON(protocol.OpFileUploadStart, 1, protocol.FileUploadStart{
		Path: "/tmp/bad", Size: 2, Checksum: "0000000000000000000000000000000000000000000000000000000000000000",
	})
	engine.Handle(startFrame)

	engine.Handle(protocol.Control(protocol.OpFileUploadData, 1, protocol.EncodeFileUploadChunk(0, []byte("AB"))))

	if _, ok := fs.files["/tmp/bad"]; ok {
		t.Fatal("expected file not to be written on checksum mismatch")
	}
	dones := sink.framesOfType(protocol.OpFileUploadDone)
	if len(dones) != 1 {
		t.Fatalf("expected one FILE_UPLOAD_DONE, got %d", len(dones))
	}
	var done protocol.FileUploadDone
	if err := dones[0].ParseJSON(&done); err != nil || done.Success {
		t.Fatalf("expected failure done: %+v err=%v", done, err)
	}
}

func TestUploadAcceptsMatchingChecksum(t *testing.T) {
	fs := newFakeFS()
	sink := &fakeSink{}
	engine := New(fs, sink)

	sum := blake2b.Sum256([]byte("AB"))
	checksum := hex.EncodeToString(sum[:])

	startFrame, _ := protocol.ControlJSON(protocol.OpFileUploadStart, 2, protocol.FileUploadStart{
		Path: "/tmp/good", Size: 2, Checksum: checksum,
	})
	engine.Handle(startFrame)
	engine.Handle(protocol.Control(protocol.OpFileUploadData, 2, protocol.EncodeFileUploadChunk(0, []byte("AB"))))

	if got := string(fs.files["/tmp/good"]); got != "AB" {
		t.Fatalf("file contents = %q, want AB", got)
	}
}

func TestUploadDataForUnknownRequestIsDropped(t *testing.T) {
	fs := newFakeFS()
	sink := &fakeSink{}
	engine := New(fs, sink)

	chunk := protocol.Control(protocol.OpFileUploadData, 999, protocol.EncodeFileUploadChunk(0, []byte("x")))
	engine.Handle(chunk)

	if len(fs.files) != 0 {
		t.Fatalf("expected no file write, got %v", fs.files)
	}
	if len(sink.frames) != 0 {
		t.Fatalf("expected no reply frame, got %d", len(sink.frames))
	}
}

func TestDownloadChunking(t *testing.T) {
	fs := newFakeFS()
	sink := &fakeSink{}
	engine := New(fs, sink)

	data := make([]byte, DownloadChunkSize*2+100)
	for i := range data {
		data[i] = byte(i)
	}
	fs.files["/big"] = data

	req, _ := protocol.ControlJSON(protocol.OpFileDownloadReq, 7, protocol.FileDownloadRequest{Path: "/big"})
	engine.Handle(req)

	chunks := sink.framesOfType(protocol.OpFileDownloadData)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	var reassembled []byte
	for i, c := range chunks {
		seq, total, body, err := protocol.DecodeFileDownloadChunk(c.Payload)
		if err != nil {
			t.Fatalf("decode chunk %d: %v", i, err)
		}
		if int(seq) != i || total != 3 {
			t.Fatalf("chunk %d: seq=%d total=%d", i, seq, total)
		}
		reassembled = append(reassembled, body...)
	}
	if len(reassembled) != len(data) {
		t.Fatalf("reassembled %d bytes, want %d", len(reassembled), len(data))
	}
}

func TestDownloadEmptyFileSendsOneEmptyChunk(t *testing.T) {
	fs := newFakeFS()
	sink := &fakeSink{}
	engine := New(fs, sink)
	fs.files["/empty"] = nil

	req, _ := protocol.ControlJSON(protocol.OpFileDownloadReq, 1, protocol.FileDownloadRequest{Path: "/empty"})
	engine.Handle(req)

	chunks := sink.framesOfType(protocol.OpFileDownloadData)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for empty file, got %d", len(chunks))
	}
	seq, total, body, err := protocol.DecodeFileDownloadChunk(chunks[0].Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seq != 0 || total != 1 || len(body) != 0 {
		t.Fatalf("seq=%d total=%d body=%v", seq, total, body)
	}
}

func TestDeleteReplies(t *testing.T) {
	fs := newFakeFS()
	fs.files["/gone"] = []byte("x")
	sink := &fakeSink{}
	engine := New(fs, sink)

	req, _ := protocol.ControlJSON(protocol.OpFileDeleteReq, 3, protocol.FileDeleteRequest{Path: "/gone"})
	engine.Handle(req)

	if fs.Exists("/gone") {
		t.Fatal("expected file to be deleted")
	}
	results := sink.framesOfType(protocol.OpFileResult)
	if len(results) != 1 {
		t.Fatalf("expected 1 FILE_RESULT, got %d", len(results))
	}
}
