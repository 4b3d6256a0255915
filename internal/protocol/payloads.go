package protocol

import (
	"encoding/binary"
	"fmt"
)

// AuthRequest is the channel-0 JSON payload sent immediately after dial.
type AuthRequest struct {
	SessionToken string `json:"session_token"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	Hostname     string `json:"hostname"`
	AgentVersion string `json:"agent_version"`
	DeviceType   string `json:"type"`
}

// AuthResponse is the server's reply to AuthRequest.
type AuthResponse struct {
	Success      bool   `json:"success"`
	DeviceID     string `json:"device_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	Error        string `json:"error,omitempty"`
}

// AgentInfo is sent outbound-only, once authenticated.
type AgentInfo struct {
	DeviceID     string `json:"device_id"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	Hostname     string `json:"hostname"`
	AgentVersion string `json:"agent_version"`
	UptimeSecs   int64  `json:"uptime_secs"`
}

// Command is the control-plane JSON payload for OpCommand, discriminated by Type.
type Command struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"` // RUN_SHELL
}

// CommandResult replies to a Command.
type CommandResult struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exitCode,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DesktopOpenRequest opens a screen-sharing session.
type DesktopOpenRequest struct {
	Quality  int    `json:"quality"`
	FPS      int    `json:"fps"`
	Encoding string `json:"encoding"`
}

// DefaultDesktopOpenRequest mirrors the reference implementation's defaults
// (quality=70, fps=15, encoding="jpeg") for callers that parse a partial JSON object.
func DefaultDesktopOpenRequest() DesktopOpenRequest {
	return DesktopOpenRequest{Quality: 70, FPS: 15, Encoding: "jpeg"}
}

// DesktopQuality changes the active encoder quality for a screen session.
type DesktopQuality struct {
	Quality int `json:"quality"`
}

// TerminalOpenRequest opens a shell session.
type TerminalOpenRequest struct {
	Shell string `json:"shell,omitempty"`
	Cols  uint16 `json:"cols"`
	Rows  uint16 `json:"rows"`
}

// DefaultTerminalOpenRequest mirrors the reference defaults (cols=80, rows=24).
func DefaultTerminalOpenRequest() TerminalOpenRequest {
	return TerminalOpenRequest{Cols: 80, Rows: 24}
}

// FileListRequest asks for a directory listing.
type FileListRequest struct {
	Path string `json:"path"`
}

// FileEntry is one row of a FILE_LIST_RESP payload.
type FileEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDir       bool   `json:"is_dir"`
	Size        int64  `json:"size"`
	Modified    int64  `json:"modified,omitempty"`
	Permissions string `json:"permissions,omitempty"`
}

// FileDownloadRequest asks the agent to stream a file's contents back.
type FileDownloadRequest struct {
	Path string `json:"path"`
}

// FileUploadStart registers a pending upload.
type FileUploadStart struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// FileDeleteRequest removes a file or directory.
type FileDeleteRequest struct {
	Path string `json:"path"`
}

// FileResult is the generic file-operation reply, also used to ACK FILE_UPLOAD_START.
type FileResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FileUploadDone confirms a completed upload.
type FileUploadDone struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TelemetryData is the periodic/on-demand system snapshot.
type TelemetryData struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	DiskUsedBytes uint64  `json:"disk_used_bytes"`
	DiskTotalBytes uint64 `json:"disk_total_bytes"`
	OSVersion     string  `json:"os_version"`
}

// DesktopFrameHeader is the fixed-size binary prefix of a DESKTOP_FRAME payload;
// ImageBytes follows immediately after in the encoded frame.
type DesktopFrameHeader struct {
	X, Y, W, H uint16
	Encoding   uint8
	Flags      uint8
}

// EncodeDesktopFrame builds a full DESKTOP_FRAME payload.
func EncodeDesktopFrame(h DesktopFrameHeader, imageBytes []byte) []byte {
	out := make([]byte, 10+len(imageBytes))
	binary.LittleEndian.PutUint16(out[0:2], h.X)
	binary.LittleEndian.PutUint16(out[2:4], h.Y)
	binary.LittleEndian.PutUint16(out[4:6], h.W)
	binary.LittleEndian.PutUint16(out[6:8], h.H)
	out[8] = h.Encoding
	out[9] = h.Flags
	copy(out[10:], imageBytes)
	return out
}

// DecodeDesktopFrame splits a DESKTOP_FRAME payload into its header and image bytes.
func DecodeDesktopFrame(payload []byte) (DesktopFrameHeader, []byte, error) {
	if len(payload) < 10 {
		return DesktopFrameHeader{}, nil, fmt.Errorf("protocol: desktop frame payload too short")
	}
	h := DesktopFrameHeader{
		X:        binary.LittleEndian.Uint16(payload[0:2]),
		Y:        binary.LittleEndian.Uint16(payload[2:4]),
		W:        binary.LittleEndian.Uint16(payload[4:6]),
		H:        binary.LittleEndian.Uint16(payload[6:8]),
		Encoding: payload[8],
		Flags:    payload[9],
	}
	return h, payload[10:], nil
}

// EncodeFileDownloadChunk builds a FILE_DOWNLOAD_DATA payload.
func EncodeFileDownloadChunk(seq, total uint32, data []byte) []byte {
	out := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(out[0:4], seq)
	binary.LittleEndian.PutUint32(out[4:8], total)
	copy(out[8:], data)
	return out
}

// DecodeFileDownloadChunk parses a FILE_DOWNLOAD_DATA payload.
func DecodeFileDownloadChunk(payload []byte) (seq, total uint32, data []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, fmt.Errorf("protocol: download chunk payload too short")
	}
	seq = binary.LittleEndian.Uint32(payload[0:4])
	total = binary.LittleEndian.Uint32(payload[4:8])
	return seq, total, payload[8:], nil
}

// EncodeFileUploadChunk builds a FILE_UPLOAD_DATA payload.
func EncodeFileUploadChunk(seq uint32, data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(out[0:4], seq)
	copy(out[4:], data)
	return out
}

// DecodeFileUploadChunk parses a FILE_UPLOAD_DATA payload.
func DecodeFileUploadChunk(payload []byte) (seq uint32, data []byte, err error) {
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("protocol: upload chunk payload too short")
	}
	return binary.LittleEndian.Uint32(payload[0:4]), payload[4:], nil
}
