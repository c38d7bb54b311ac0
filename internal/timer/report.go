package timer

import logx "opsadmin/pkg/logx"

// Skipped row reasons. Offline rows are still registered; the Offline gate
// applies per trigger.
const (
	SkipUnknownSysCode = "unknown sys_code"
	SkipUnknownType    = "unknown job_type"
)

type SkippedJob struct {
	SysID  int64  `json:"sys_id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type FailedJob struct {
	SysID int64  `json:"sys_id"`
	Name  string `json:"name"`
	Err   string `json:"err"`
}

// RegisterReport is the per-row outcome of one register pass.
type RegisterReport struct {
	Source     string       `json:"source"`
	Registered []string     `json:"registered"` // run identifiers
	Skipped    []SkippedJob `json:"skipped,omitempty"`
	Failed     []FailedJob  `json:"failed,omitempty"`
}

func (r *RegisterReport) skip(id int64, name, reason string) {
	r.Skipped = append(r.Skipped, SkippedJob{SysID: id, Name: name, Reason: reason})
}

func (r *RegisterReport) fail(id int64, name string, err error) {
	r.Failed = append(r.Failed, FailedJob{SysID: id, Name: name, Err: err.Error()})
}

func (r RegisterReport) log(log logx.Logger) {
	fields := []logx.Field{
		logx.String("source", r.Source),
		logx.Int("registered", len(r.Registered)),
		logx.Int("skipped", len(r.Skipped)),
		logx.Int("failed", len(r.Failed)),
	}
	if len(r.Failed) > 0 {
		log.Warn("register finished with failures", fields...)
		for _, f := range r.Failed {
			log.Warn("job not registered", logx.Int64("sys_id", f.SysID), logx.String("name", f.Name), logx.String("err", f.Err))
		}
		return
	}
	log.Info("register finished", fields...)
}
