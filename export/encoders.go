package export

import (
	"encoding/json"
	"encoding/xml"
	"io"

	"github.com/pevans/repocrawl/scraper"
	"gopkg.in/yaml.v3"
)

const rootElement = "repositories"

type xmlRepository struct {
	XMLName     xml.Name      `xml:"repository"`
	URL         string        `xml:"url"`
	About       *string       `xml:"about,omitempty"`
	LastUpdated *string       `xml:"last_updated,omitempty"`
	Languages   *xmlLanguages `xml:"languages,omitempty"`
	NumCommits  *int          `xml:"num_commits,omitempty"`
}

type xmlLanguages struct {
	Language []xmlLanguage `xml:"language"`
}

// Language names such as "C++" are not valid element names, so they are
// stored as attributes.
type xmlLanguage struct {
	Name    string `xml:"name,attr"`
	Percent string `xml:"percent,attr"`
}

func toXML(record scraper.FinalRecord) xmlRepository {
	out := xmlRepository{
		URL:         record.URL,
		About:       record.About,
		LastUpdated: record.LastUpdated,
		NumCommits:  record.NumCommits,
	}
	if record.Languages != nil {
		out.Languages = &xmlLanguages{}
		for _, lang := range record.Languages {
			out.Languages.Language = append(out.Languages.Language, xmlLanguage(lang))
		}
	}
	return out
}

type xmlEncoder struct {
	w   io.Writer
	enc *xml.Encoder
}

func newXMLEncoder(w io.Writer) *xmlEncoder {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return &xmlEncoder{w: w, enc: enc}
}

func (x *xmlEncoder) begin() error {
	if _, err := io.WriteString(x.w, xml.Header); err != nil {
		return err
	}
	return x.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: rootElement}})
}

func (x *xmlEncoder) encode(record scraper.FinalRecord) error {
	return x.enc.Encode(toXML(record))
}

func (x *xmlEncoder) end() error {
	if err := x.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: rootElement}}); err != nil {
		return err
	}
	if err := x.enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(x.w, "\n")
	return err
}

// jsonEncoder streams a JSON array, one indented object per record.
type jsonEncoder struct {
	w     io.Writer
	count int
}

func newJSONEncoder(w io.Writer) *jsonEncoder {
	return &jsonEncoder{w: w}
}

func (j *jsonEncoder) begin() error {
	_, err := io.WriteString(j.w, "[")
	return err
}

func (j *jsonEncoder) encode(record scraper.FinalRecord) error {
	data, err := json.MarshalIndent(record, "  ", "  ")
	if err != nil {
		return err
	}

	sep := "\n  "
	if j.count > 0 {
		sep = ",\n  "
	}
	if _, err := io.WriteString(j.w, sep); err != nil {
		return err
	}
	if _, err := j.w.Write(data); err != nil {
		return err
	}
	j.count++
	return nil
}

func (j *jsonEncoder) end() error {
	closing := "]\n"
	if j.count > 0 {
		closing = "\n]\n"
	}
	_, err := io.WriteString(j.w, closing)
	return err
}

// yamlEncoder collects records and writes them as one sequence at the end.
type yamlEncoder struct {
	w       io.Writer
	records []scraper.FinalRecord
}

func newYAMLEncoder(w io.Writer) *yamlEncoder {
	return &yamlEncoder{w: w, records: []scraper.FinalRecord{}}
}

func (y *yamlEncoder) begin() error { return nil }

func (y *yamlEncoder) encode(record scraper.FinalRecord) error {
	y.records = append(y.records, record)
	return nil
}

func (y *yamlEncoder) end() error {
	enc := yaml.NewEncoder(y.w)
	enc.SetIndent(2)
	if err := enc.Encode(y.records); err != nil {
		return err
	}
	return enc.Close()
}
