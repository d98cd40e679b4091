package report

import (
	"bufio"
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/carbocation/pfx"
	"github.com/carbocation/segeval/engine"
	"github.com/carbocation/segeval/landmark"
	"github.com/carbocation/segeval/lesion"
)

// Document is the XML form of a report. Metric elements are named after the
// metric identifier, e.g. <DICE name="Dice Coefficient" value="0.912345" .../>.
type Document struct {
	XMLName xml.Name `xml:"measurement"`

	Truth *File `xml:"fixed-image,omitempty"`
	Test  *File `xml:"moving-image,omitempty"`
	Mask  *File `xml:"mask,omitempty"`

	Dimension *Dimension `xml:"dimension,omitempty"`
	Threshold *Threshold `xml:"threshold,omitempty"`
	Options   *Options   `xml:"options,omitempty"`

	Metrics *Metrics      `xml:"metrics,omitempty"`
	Labels  []LabelMetric `xml:"label,omitempty"`

	Landmarks *Landmarks `xml:"landmarks,omitempty"`
	Lesions   *Lesions   `xml:"lesions,omitempty"`

	Time  Time   `xml:"time"`
	Build *Build `xml:"build,omitempty"`
}

type File struct {
	Filename string `xml:"filename,attr"`
}

type Dimension struct {
	X        int     `xml:"x,attr"`
	Y        int     `xml:"y,attr"`
	Z        int     `xml:"z,attr"`
	SpacingX float64 `xml:"spacing-x,attr"`
	SpacingY float64 `xml:"spacing-y,attr"`
	SpacingZ float64 `xml:"spacing-z,attr"`
}

type Threshold struct {
	Value float64 `xml:"value,attr"`
}

type Options struct {
	Use       string `xml:"use,attr"`
	Unit      string `xml:"unit,attr"`
	Mode      string `xml:"mode,attr"`
	Averaging string `xml:"averaging,attr"`
	Streaming bool   `xml:"streaming,attr"`
}

type Metrics struct {
	Items []Metric
}

type Metric struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Value   string `xml:"value,attr"`
	Symbol  string `xml:"symbol,attr"`
	Type    string `xml:"type,attr"`
	Unit    string `xml:"unit,attr"`
	Error   string `xml:"error,attr,omitempty"`
}

type LabelMetric struct {
	Value string `xml:"value,attr"`
	Name  string `xml:"name,attr,omitempty"`
	Items []Metric
}

type Landmarks struct {
	Matched int             `xml:"matched,attr"`
	Missing int             `xml:"missing,attr"`
	Extra   int             `xml:"extra,attr"`
	Mean    string          `xml:"mean,attr"`
	Median  string          `xml:"median,attr"`
	Max     string          `xml:"max,attr"`
	StdDev  string          `xml:"std,attr"`
	Items   []LandmarkMatch `xml:"landmark"`
}

type LandmarkMatch struct {
	ID       string `xml:"id,attr"`
	Status   string `xml:"status,attr"`
	Distance string `xml:"distance,attr"`
}

type Lesions struct {
	TP            int           `xml:"tp,attr"`
	FP            int           `xml:"fp,attr"`
	FN            int           `xml:"fn,attr"`
	ExcludedTruth int           `xml:"excluded-truth,attr"`
	ExcludedTest  int           `xml:"excluded-test,attr"`
	Precision     string        `xml:"precision,attr"`
	Recall        string        `xml:"recall,attr"`
	FMeasure      string        `xml:"fmeasure,attr"`
	Items         []LesionMatch `xml:"lesion"`
}

type LesionMatch struct {
	Truth    string `xml:"truth,attr,omitempty"`
	Test     string `xml:"test,attr,omitempty"`
	Status   string `xml:"status,attr"`
	Overlap  int    `xml:"overlap,attr"`
	Distance string `xml:"distance,attr"`
}

type Time struct {
	Start   string `xml:"start,attr,omitempty"`
	Elapsed string `xml:"elapsed-ms,attr"`
}

type Build struct {
	Package   string `xml:"package,attr"`
	Version   string `xml:"version,attr,omitempty"`
	GoVersion string `xml:"go,attr"`
	Commit    string `xml:"commit,attr,omitempty"`
	Modified  bool   `xml:"modified,attr"`
}

func newDocument(meta Meta) *Document {
	doc := &Document{}
	if meta.Truth != "" {
		doc.Truth = &File{Filename: meta.Truth}
	}
	if meta.Test != "" {
		doc.Test = &File{Filename: meta.Test}
	}
	if meta.Mask != "" {
		doc.Mask = &File{Filename: meta.Mask}
	}
	if meta.Threshold != nil {
		doc.Threshold = &Threshold{Value: *meta.Threshold}
	}
	if !meta.Start.IsZero() {
		doc.Time.Start = meta.Start.Format(time.RFC3339)
	}
	doc.Time.Elapsed = strconv.FormatInt(meta.elapsed().Milliseconds(), 10)
	if meta.Build.Known() {
		doc.Build = &Build{
			Package:   meta.Build.Package,
			Version:   meta.Build.Version,
			GoVersion: meta.Build.GoVersion,
			Commit:    meta.Build.Commit,
			Modified:  meta.Build.Modified,
		}
	}

	return doc
}

func metricItems(rs engine.Results) []Metric {
	out := make([]Metric, 0, len(rs))
	for _, r := range rs {
		m := Metric{
			XMLName: xml.Name{Local: string(r.ID)},
			Name:    r.Name,
			Value:   formatValue(r.Value),
			Symbol:  string(r.ID),
			Type:    r.Category.String(),
			Unit:    r.Unit,
		}
		if r.Err != nil {
			m.Value = notAvailable
			m.Error = r.Err.Error()
		}
		out = append(out, m)
	}
	return out
}

// Segmentation builds the document of a segmentation evaluation.
func Segmentation(meta Meta, r *engine.Report) *Document {
	doc := newDocument(meta)
	if meta.End.IsZero() {
		doc.Time.Elapsed = strconv.FormatInt(r.Elapsed.Milliseconds(), 10)
	}

	g := r.Geometry
	doc.Dimension = &Dimension{
		X: g.Dims[0], Y: g.Dims[1], Z: g.Dims[2],
		SpacingX: g.Spacing[0], SpacingY: g.Spacing[1], SpacingZ: g.Spacing[2],
	}
	doc.Options = &Options{
		Use:       meta.Selection,
		Unit:      r.Unit.String(),
		Mode:      r.Mode.String(),
		Averaging: r.Averaging.String(),
		Streaming: r.Streaming,
	}
	doc.Metrics = &Metrics{Items: metricItems(r.Results)}

	for _, l := range r.PerLabel {
		doc.Labels = append(doc.Labels, LabelMetric{
			Value: formatLabel(l.Label),
			Name:  meta.labelName(l.Label),
			Items: metricItems(l.Results),
		})
	}

	return doc
}

func Landmark(meta Meta, r *landmark.Report) *Document {
	doc := newDocument(meta)
	lm := &Landmarks{
		Matched: r.Matched,
		Missing: r.Missing,
		Extra:   r.Extra,
		Mean:    formatValue(r.Mean),
		Median:  formatValue(r.Median),
		Max:     formatValue(r.Max),
		StdDev:  formatValue(r.StdDev),
	}
	for _, m := range r.Matches {
		lm.Items = append(lm.Items, LandmarkMatch{ID: m.ID, Status: m.Status.String(), Distance: formatValue(m.Distance)})
	}
	doc.Landmarks = lm

	return doc
}

func Lesion(meta Meta, r *lesion.Report) *Document {
	doc := newDocument(meta)
	ls := &Lesions{
		TP:            r.TP,
		FP:            r.FP,
		FN:            r.FN,
		ExcludedTruth: r.ExcludedTruth,
		ExcludedTest:  r.ExcludedTest,
		Precision:     formatValue(r.Precision),
		Recall:        formatValue(r.Recall),
		FMeasure:      formatValue(r.FMeasure),
	}
	for _, m := range r.Matches {
		ls.Items = append(ls.Items, LesionMatch{
			Truth:    m.TruthID,
			Test:     m.TestID,
			Status:   m.Status.String(),
			Overlap:  m.Overlap,
			Distance: formatValue(m.Distance),
		})
	}
	doc.Lesions = ls

	return doc
}

func WriteXML(w io.Writer, doc *Document) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteXMLFile writes doc to path, replacing any existing file.
func WriteXMLFile(path string, doc *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	fw := bufio.NewWriter(f)
	if err := WriteXML(fw, doc); err != nil {
		return pfx.Err(err)
	}
	if err := fw.Flush(); err != nil {
		return pfx.Err(err)
	}

	return f.Close()
}
