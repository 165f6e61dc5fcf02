package worker

import (
	"fmt"
	"go_blackbox/networking/opcode"
	"time"
)

// Report is one saved payload, kept exactly as the client compressed it
type Report struct {
	Seq      uint64
	Command  uint8
	Data     []byte
	Digest   string
	Received time.Time
}

// FileName returns the name a report is persisted under
func (r *Report) FileName() string {
	return fmt.Sprintf("%s-%06d.report", opcode.CommandName(r.Command), r.Seq)
}
