package worker

import (
	"bufio"
	"go_blackbox/constants"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Persister writes reports to a directory from its own goroutine
type Persister struct {
	folder string
	queue  chan *Report
	done   chan int
}

// StartPersister starts goroutine consuming a write queue of qlen reports
func StartPersister(folder string, qlen int) *Persister {
	p := &Persister{
		folder: folder,
		queue:  make(chan *Report, qlen),
		done:   make(chan int),
	}
	go func(reports chan *Report, result chan int) {
		written := 0
		for report := range reports {
			if err := p.write(report); err != nil {
				log.Error().Err(err).Str("file", report.FileName()).Msg("persisting report failed")
				continue
			}
			written++
		}
		// Signal that all queued reports have been handled.
		result <- written
		close(result)
	}(p.queue, p.done)
	return p
}

func (p *Persister) write(report *Report) error {
	file, err := os.Create(filepath.Join(p.folder, report.FileName()))
	if err != nil {
		return err
	}
	writer := bufio.NewWriterSize(file, constants.MAX_MESSAGE_PACKET_SIZE)
	if _, err := writer.Write(report.Data); err != nil {
		file.Close()
		return err
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Persist queues report for writing, blocking while the queue is full
func (p *Persister) Persist(report *Report) {
	p.queue <- report
}

// Stop waits until every queued report is written and returns how many were
func (p *Persister) Stop() int {
	close(p.queue)
	return <-p.done
}
