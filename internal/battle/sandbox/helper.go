package sandbox

// InitRequest is the JSON document handed to the sandbox-init helper on its
// stdin. The helper applies the limits, redirects stdin and execs the command;
// stdout and stderr stay inherited so the parent captures them directly.
type InitRequest struct {
	Cmd           []string   `json:"Cmd"`
	WorkDir       string     `json:"WorkDir"`
	Env           []string   `json:"Env"`
	StdinPath     string     `json:"StdinPath"`
	EnableSeccomp bool       `json:"EnableSeccomp"`
	Limits        InitLimits `json:"Limits"`
}

// InitLimits are the rlimit bounds the helper installs before exec.
type InitLimits struct {
	CPUSeconds  int64 `json:"CPUSeconds"`
	OutputBytes int64 `json:"OutputBytes"`
	MemoryMB    int64 `json:"MemoryMB"`
	MaxProcs    int64 `json:"MaxProcs"`
}
