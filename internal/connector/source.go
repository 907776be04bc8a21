package connector

import "gopkg.in/yaml.v3"

// Source is one data-acquisition step producing a table.
type Source interface {
	Kind() string
	SourceKey() string
	ComputeList() []Compute
	Serialized() bool
}

// SourceBase carries the fields shared by every source.
type SourceBase struct {
	Serialization `yaml:",inline"`
	Key           string   `yaml:"key"`
	Computes      Computes `yaml:"computes"`
}

// SourceKey returns the normalized key the table is cached under.
func (b *SourceBase) SourceKey() string {
	return SourceRef(b.Key)
}

func (b *SourceBase) ComputeList() []Compute {
	return b.Computes
}

type SNMPGetSource struct {
	SourceBase `yaml:",inline"`
	OID        string `yaml:"oid"`
}

func (*SNMPGetSource) Kind() string { return KindSNMPGet }

type SNMPTableSource struct {
	SourceBase    `yaml:",inline"`
	OID           string `yaml:"oid"`
	SelectColumns string `yaml:"selectColumns"`
}

func (*SNMPTableSource) Kind() string { return KindSNMPTable }

type HTTPSource struct {
	SourceBase `yaml:",inline"`
	Method     string            `yaml:"method"`
	Path       string            `yaml:"path"`
	Header     map[string]string `yaml:"header"`
	Body       string            `yaml:"body"`
}

func (*HTTPSource) Kind() string { return KindHTTP }

// CommandLineSource runs a command and parses its output into a table.
type CommandLineSource struct {
	SourceBase        `yaml:",inline"`
	CommandLine       string `yaml:"commandLine"`
	ExecuteLocally    bool   `yaml:"executeLocally"`
	Keep              string `yaml:"keep"`
	Exclude           string `yaml:"exclude"`
	BeginAtLineNumber int    `yaml:"beginAtLineNumber"`
	EndAtLineNumber   int    `yaml:"endAtLineNumber"`
	Separators        string `yaml:"separators"`
	SelectColumns     string `yaml:"selectColumns"`
}

func (*CommandLineSource) Kind() string { return KindCommandLine }

// QuerySource is a WQL (wmi) or CQL (wbem) query.
type QuerySource struct {
	SourceBase `yaml:",inline"`
	Protocol   string `yaml:"-"`
	Query      string `yaml:"query"`
	Namespace  string `yaml:"namespace"`
}

func (s *QuerySource) Kind() string { return s.Protocol }

type IPMISource struct {
	SourceBase `yaml:",inline"`
}

func (*IPMISource) Kind() string { return KindIPMI }

// NVMLSource reads local GPU devices. Query defaults to "devices".
type NVMLSource struct {
	SourceBase `yaml:",inline"`
	Query      string `yaml:"query"`
}

func (*NVMLSource) Kind() string { return KindNVML }

// TableJoinSource joins two cached tables on 1-based key columns. Left rows
// without a match are kept when DefaultRightLine is set.
type TableJoinSource struct {
	SourceBase       `yaml:",inline"`
	LeftTable        string `yaml:"leftTable"`
	RightTable       string `yaml:"rightTable"`
	LeftKeyColumn    int    `yaml:"leftKeyColumn"`
	RightKeyColumn   int    `yaml:"rightKeyColumn"`
	DefaultRightLine string `yaml:"defaultRightLine"`
}

func (*TableJoinSource) Kind() string { return KindTableJoin }

type TableUnionSource struct {
	SourceBase `yaml:",inline"`
	Tables     []string `yaml:"tables"`
}

func (*TableUnionSource) Kind() string { return KindTableUnion }

type CopySource struct {
	SourceBase `yaml:",inline"`
	From       string `yaml:"from"`
}

func (*CopySource) Kind() string { return KindCopy }

// StaticSource yields a constant. Rows are separated by newlines, cells by
// semicolons.
type StaticSource struct {
	SourceBase `yaml:",inline"`
	Value      string `yaml:"value"`
}

func (*StaticSource) Kind() string { return KindStatic }

var sourceFactories = map[string]func() Source{
	KindSNMPGet:     func() Source { return &SNMPGetSource{} },
	KindSNMPTable:   func() Source { return &SNMPTableSource{} },
	KindHTTP:        func() Source { return &HTTPSource{} },
	KindCommandLine: func() Source { return &CommandLineSource{} },
	KindWMI:         func() Source { return &QuerySource{Protocol: KindWMI} },
	KindWBEM:        func() Source { return &QuerySource{Protocol: KindWBEM} },
	KindIPMI:        func() Source { return &IPMISource{} },
	KindNVML:        func() Source { return &NVMLSource{} },
	KindTableJoin:   func() Source { return &TableJoinSource{} },
	KindTableUnion:  func() Source { return &TableUnionSource{} },
	KindCopy:        func() Source { return &CopySource{} },
	KindStatic:      func() Source { return &StaticSource{} },
}

// Sources is an ordered source list; later sources may reference the tables
// of earlier ones.
type Sources []Source

func (s *Sources) UnmarshalYAML(node *yaml.Node) error {
	list, err := decodeSequence(node, sourceFactories, "source")
	if err != nil {
		return err
	}
	*s = list
	return nil
}
