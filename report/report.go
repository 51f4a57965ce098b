// Package report renders transfer cache snapshots for people and tools.
package report

import (
	"encoding/json"
	"io"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/xfercache/central"
	"github.com/joshuapare/xfercache/transfer"
)

// Options controls rendering.
type Options struct {
	JSON     bool         // Emit JSON instead of a table
	ShowIdle bool         // Include classes with no objects and no spans
	Lang     language.Tag // Number grouping. Default: language.English
}

// Summary aggregates a snapshot across classes.
type Summary struct {
	Classes        int
	ActiveClasses  int
	CachedObjects  int
	CentralObjects int
	ResidentBytes  uint64
	OverheadBytes  uint64
	Capacity       int
	Spans          central.SpanStats
	Hits           uint64
	Misses         uint64
}

// HitRate returns the fraction of insert/remove calls served without the
// central list, or 0 when there was no traffic.
func (s Summary) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Summarize folds a snapshot into a Summary.
func Summarize(snap []transfer.ClassStats) Summary {
	var s Summary
	s.Classes = len(snap)
	for _, cs := range snap {
		if active(cs) {
			s.ActiveClasses++
		}
		s.CachedObjects += cs.Cache.Used
		s.CentralObjects += cs.CentralLength
		s.ResidentBytes += cs.ResidentBytes()
		s.OverheadBytes += cs.OverheadBytes
		s.Capacity += cs.Cache.Capacity
		s.Spans.Add(cs.Spans)
		s.Hits += cs.Cache.InsertHits + cs.Cache.RemoveHits
		s.Misses += cs.Cache.InsertMisses + cs.Cache.RemoveMisses
	}
	return s
}

func active(cs transfer.ClassStats) bool {
	return cs.Cache.Used > 0 || cs.CentralLength > 0 || cs.Spans.InUse() > 0 ||
		cs.Cache.InsertHits+cs.Cache.InsertMisses+cs.Cache.RemoveHits+cs.Cache.RemoveMisses > 0
}

// jsonReport is the JSON document layout.
type jsonReport struct {
	Summary Summary               `json:"summary"`
	HitRate float64               `json:"hit_rate"`
	Classes []transfer.ClassStats `json:"classes"`
}

// Write renders snap to w.
func Write(w io.Writer, snap []transfer.ClassStats, opts Options) error {
	rows := make([]transfer.ClassStats, 0, len(snap))
	for _, cs := range snap {
		if cs.SizeClass == 0 {
			continue
		}
		if opts.ShowIdle || active(cs) {
			rows = append(rows, cs)
		}
	}
	sum := Summarize(snap)

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonReport{Summary: sum, HitRate: sum.HitRate(), Classes: rows})
	}

	lang := opts.Lang
	if lang == language.Und {
		lang = language.English
	}
	p := message.NewPrinter(lang)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	p.Fprintf(tw, "class\tsize\tused\tcap\tmax\tcentral\tspans\thits\tmisses\tgrown\tevicted\t\n")
	for _, cs := range rows {
		c := cs.Cache
		p.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			cs.SizeClass, cs.ObjectSize, c.Used, c.Capacity, c.MaxCapacity,
			cs.CentralLength, cs.Spans.InUse(),
			c.InsertHits+c.RemoveHits, c.InsertMisses+c.RemoveMisses, c.Grown, c.Evicted)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := p.Fprintf(w, "\n%d of %d classes active, %d cached + %d central objects, %d resident bytes, %d overhead bytes, %d live spans, hit rate %.1f%%\n",
		sum.ActiveClasses, sum.Classes-1, sum.CachedObjects, sum.CentralObjects,
		sum.ResidentBytes, sum.OverheadBytes, sum.Spans.InUse(), sum.HitRate()*100)
	return err
}
