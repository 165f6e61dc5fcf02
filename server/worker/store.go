package worker

import (
	"errors"
	"fmt"
	"go_blackbox/fileio"
	"go_blackbox/networking/opcode"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store errors
var (
	ErrNotSaveCommand = errors.New("worker: reports are stored under save commands only")
	ErrStoreClosed    = errors.New("worker: report store closed")
)

// ReportStore keeps saved reports per save command in arrival order
type ReportStore struct {
	mu        sync.Mutex
	seq       uint64
	reports   map[uint8][]*Report
	persister *Persister
	closed    bool
}

// NewReportStore returns memory only store
func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[uint8][]*Report)}
}

// OpenReportStore loads reports persisted in folder and writes new ones there
func OpenReportStore(folder string, qlen int) (*ReportStore, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("worker: %s is not a directory", folder)
	}
	s := NewReportStore()
	if err := s.load(folder); err != nil {
		return nil, err
	}
	s.persister = StartPersister(folder, qlen)
	return s, nil
}

func (s *ReportStore) load(folder string) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return err
	}
	var loaded []*Report
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".report") {
			continue
		}
		stem := strings.TrimSuffix(name, ".report")
		cut := strings.LastIndexByte(stem, '-')
		if cut < 0 {
			continue
		}
		command := opcode.CommandByName(stem[:cut])
		seq, err := strconv.ParseUint(stem[cut+1:], 10, 64)
		if !opcode.IsSave(command) || err != nil {
			log.Warn().Str("file", name).Msg("ignoring unrecognized file")
			continue
		}
		data, err := os.ReadFile(filepath.Join(folder, name))
		if err != nil {
			return err
		}
		loaded = append(loaded, &Report{
			Seq:     seq,
			Command: command,
			Data:    data,
			Digest:  fileio.Digest(data),
		})
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Seq < loaded[j].Seq })
	for _, report := range loaded {
		s.reports[report.Command] = append(s.reports[report.Command], report)
		s.seq = max(s.seq, report.Seq)
	}
	if len(loaded) > 0 {
		log.Info().Int("reports", len(loaded)).Str("folder", folder).Msg("loaded stored reports")
	}
	return nil
}

// Put stores data as the next report of a save command
func (s *ReportStore) Put(command uint8, data []byte) (*Report, error) {
	if !opcode.IsSave(command) {
		return nil, fmt.Errorf("%w: %s", ErrNotSaveCommand, opcode.CommandName(command))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	s.seq++
	report := &Report{
		Seq:      s.seq,
		Command:  command,
		Data:     data,
		Digest:   fileio.Digest(data),
		Received: time.Now(),
	}
	s.reports[command] = append(s.reports[command], report)
	// Enqueued under mu so Close never stops the queue mid send.
	if s.persister != nil {
		s.persister.Persist(report)
	}
	return report, nil
}

// Reports returns reports of a save command, oldest first
func (s *ReportStore) Reports(command uint8) []*Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Report, len(s.reports[command]))
	copy(out, s.reports[command])
	return out
}

// Len returns number of stored reports across all commands
func (s *ReportStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, reports := range s.reports {
		n += len(reports)
	}
	return n
}

// Close rejects further Puts and waits for pending writes when the store
// is persistent. Stored reports stay readable.
func (s *ReportStore) Close() {
	s.mu.Lock()
	s.closed = true
	persister := s.persister
	s.persister = nil
	s.mu.Unlock()
	if persister == nil {
		return
	}
	written := persister.Stop()
	log.Debug().Int("written", written).Msg("report store closed")
}
