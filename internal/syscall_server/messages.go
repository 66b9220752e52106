package syscall_server

// Message Type Constants
const (
	MsgSysBootstrap = "sys_bootstrap"
	MsgSysFork      = "sys_fork"
	MsgSysExit      = "sys_exit"
	MsgSysOpen      = "sys_open"
	MsgSysClose     = "sys_close"
	MsgSysDup2      = "sys_dup2"
	MsgSysRead      = "sys_read"
	MsgSysWrite     = "sys_write"
	MsgSysSeek      = "sys_seek"
	MsgSysListProcs = "sys_list_procs"
)

// --- Payload Structs ---

type BootstrapRequest struct {
	StdinPath  string `json:"stdinPath"`
	StdoutPath string `json:"stdoutPath"`
	StderrPath string `json:"stderrPath"`
}

type BootstrapResponse struct {
	PID string `json:"pid"`
}

type ForkRequest struct {
	PID string `json:"pid"`
}

type ForkResponse struct {
	ChildPID string `json:"childPid"`
}

type ExitRequest struct {
	PID string `json:"pid"`
}

type OpenRequest struct {
	PID   string `json:"pid"`
	Path  string `json:"path"`
	Flags int    `json:"flags"`
	Mode  uint32 `json:"mode"`
}

type OpenResponse struct {
	FD int `json:"fd"`
}

type CloseRequest struct {
	PID string `json:"pid"`
	FD  int    `json:"fd"`
}

type Dup2Request struct {
	PID   string `json:"pid"`
	OldFD int    `json:"oldFd"`
	NewFD int    `json:"newFd"`
}

type ReadRequest struct {
	PID    string `json:"pid"`
	FD     int    `json:"fd"`
	Length int    `json:"length"`
}

type ReadResponse struct {
	Data []byte `json:"data"`
}

type WriteRequest struct {
	PID  string `json:"pid"`
	FD   int    `json:"fd"`
	Data []byte `json:"data"`
}

type WriteResponse struct {
	Written int `json:"written"`
}

type SeekRequest struct {
	PID    string `json:"pid"`
	FD     int    `json:"fd"`
	Offset int64  `json:"offset"`
	Whence int    `json:"whence"`
}

type SeekResponse struct {
	Offset int64 `json:"offset"`
}

type ListProcsRequest struct{}
