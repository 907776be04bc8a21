package connector

import "gopkg.in/yaml.v3"

// Criterion is one detection check. Kind is the discriminator the detection
// engine dispatches on.
type Criterion interface {
	Kind() string
	Serialized() bool
}

const (
	KindSNMPGet     = "snmpGet"
	KindSNMPGetNext = "snmpGetNext"
	KindSNMPTable   = "snmpTable"
	KindHTTP        = "http"
	KindCommandLine = "commandLine"
	KindWMI         = "wmi"
	KindWBEM        = "wbem"
	KindIPMI        = "ipmi"
	KindNVML        = "nvml"
	KindDeviceType  = "deviceType"
	KindProcess     = "process"
	KindTableJoin   = "tableJoin"
	KindTableUnion  = "tableUnion"
	KindCopy        = "copy"
	KindStatic      = "static"
)

type SNMPGetCriterion struct {
	Serialization  `yaml:",inline"`
	OID            string `yaml:"oid"`
	ExpectedResult string `yaml:"expectedResult"`
}

func (*SNMPGetCriterion) Kind() string { return KindSNMPGet }

type SNMPGetNextCriterion struct {
	Serialization  `yaml:",inline"`
	OID            string `yaml:"oid"`
	ExpectedResult string `yaml:"expectedResult"`
}

func (*SNMPGetNextCriterion) Kind() string { return KindSNMPGetNext }

type HTTPCriterion struct {
	Serialization  `yaml:",inline"`
	Method         string            `yaml:"method"`
	Path           string            `yaml:"path"`
	Header         map[string]string `yaml:"header"`
	Body           string            `yaml:"body"`
	ExpectedResult string            `yaml:"expectedResult"`
	ErrorMessage   string            `yaml:"errorMessage"`
}

func (*HTTPCriterion) Kind() string { return KindHTTP }

type CommandLineCriterion struct {
	Serialization  `yaml:",inline"`
	CommandLine    string `yaml:"commandLine"`
	ExpectedResult string `yaml:"expectedResult"`
	ExecuteLocally bool   `yaml:"executeLocally"`
	ErrorMessage   string `yaml:"errorMessage"`
}

func (*CommandLineCriterion) Kind() string { return KindCommandLine }

// QueryCriterion is a WQL/CQL query expected to return matching rows.
type QueryCriterion struct {
	Serialization  `yaml:",inline"`
	Protocol       string `yaml:"-"`
	Query          string `yaml:"query"`
	Namespace      string `yaml:"namespace"`
	ExpectedResult string `yaml:"expectedResult"`
	ErrorMessage   string `yaml:"errorMessage"`
}

func (c *QueryCriterion) Kind() string { return c.Protocol }

type IPMICriterion struct {
	Serialization `yaml:",inline"`
}

func (*IPMICriterion) Kind() string { return KindIPMI }

// NVMLCriterion passes when the local NVML library reports a GPU.
type NVMLCriterion struct {
	Serialization `yaml:",inline"`
}

func (*NVMLCriterion) Kind() string { return KindNVML }

type DeviceTypeCriterion struct {
	Serialization `yaml:",inline"`
	Keep          []string `yaml:"keep"`
	Exclude       []string `yaml:"exclude"`
}

func (*DeviceTypeCriterion) Kind() string { return KindDeviceType }

// ProcessCriterion matches running processes by command line. Only
// meaningful on the local host.
type ProcessCriterion struct {
	Serialization `yaml:",inline"`
	CommandLine   string `yaml:"commandLine"`
}

func (*ProcessCriterion) Kind() string { return KindProcess }

var criterionFactories = map[string]func() Criterion{
	KindSNMPGet:     func() Criterion { return &SNMPGetCriterion{} },
	KindSNMPGetNext: func() Criterion { return &SNMPGetNextCriterion{} },
	KindHTTP:        func() Criterion { return &HTTPCriterion{} },
	KindCommandLine: func() Criterion { return &CommandLineCriterion{} },
	KindWMI:         func() Criterion { return &QueryCriterion{Protocol: KindWMI} },
	KindWBEM:        func() Criterion { return &QueryCriterion{Protocol: KindWBEM} },
	KindIPMI:        func() Criterion { return &IPMICriterion{} },
	KindNVML:        func() Criterion { return &NVMLCriterion{} },
	KindDeviceType:  func() Criterion { return &DeviceTypeCriterion{} },
	KindProcess:     func() Criterion { return &ProcessCriterion{} },
}

// Criteria is an ordered, AND-combined criterion list.
type Criteria []Criterion

func (c *Criteria) UnmarshalYAML(node *yaml.Node) error {
	list, err := decodeSequence(node, criterionFactories, "criterion")
	if err != nil {
		return err
	}
	*c = list
	return nil
}
