package sim

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"swarmsim/pkg/swarm"
)

// Record is the stable per-event view exposed to external log
// writers, analyzers and plotters. One record per dispatched event.
type Record struct {
	Time   float64
	Kind   Kind
	Source string
	Target string
	Piece  int // NoPiece when not applicable
	Note   string
}

// Trace collects dispatch records in order.
type Trace struct {
	records []Record
}

func NewTrace() *Trace {
	return &Trace{}
}

func (t *Trace) Append(r Record) {
	t.records = append(t.records, r)
}

func (t *Trace) Records() []Record { return t.records }

func (t *Trace) Len() int { return len(t.records) }

// WriteCSV exports the trace for the external analysis tooling.
func (t *Trace) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "event", "source", "target", "piece", "note"}); err != nil {
		return fmt.Errorf("trace: write header: %w", err)
	}
	for _, r := range t.records {
		piece := ""
		if r.Piece != NoPiece {
			piece = strconv.Itoa(r.Piece)
		}
		row := []string{
			strconv.FormatFloat(r.Time, 'f', -1, 64),
			r.Kind.String(),
			r.Source,
			r.Target,
			piece,
			r.Note,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("trace: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// PeerReport is one peer's line in the termination report.
type PeerReport struct {
	ID             string
	Role           string
	JoinTime       float64
	Completed      bool
	CompletionTime float64
	PiecesOwned    int
	Downloaded     int64
	Uploaded       int64
}

// Report summarizes a finished run.
type Report struct {
	RunID            string
	EndTime          float64
	HorizonReached   bool
	EventsDispatched int
	EventsByKind     map[string]int
	Seeds            int
	Leechers         int
	Peers            []PeerReport
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s finished at t=%v (%d events", r.RunID, r.EndTime, r.EventsDispatched)
	if r.HorizonReached {
		b.WriteString(", horizon reached")
	}
	fmt.Fprintf(&b, ")\nseeds=%d leechers=%d\n", r.Seeds, r.Leechers)
	for _, p := range r.Peers {
		if p.Completed {
			fmt.Fprintf(&b, "  %-10s %-7s joined=%-8v completed=%v\n", p.ID, p.Role, p.JoinTime, p.CompletionTime)
		} else {
			fmt.Fprintf(&b, "  %-10s %-7s joined=%-8v incomplete (%d pieces)\n", p.ID, p.Role, p.JoinTime, p.PiecesOwned)
		}
	}
	return b.String()
}

func buildPeerReport(p *swarm.Peer) PeerReport {
	return PeerReport{
		ID:             p.ID,
		Role:           p.Role.String(),
		JoinTime:       p.JoinTime,
		Completed:      p.Completed,
		CompletionTime: p.CompletionTime,
		PiecesOwned:    p.Pieces.Count(),
		Downloaded:     p.TotalDownloaded(),
		Uploaded:       p.TotalUploaded(),
	}
}
